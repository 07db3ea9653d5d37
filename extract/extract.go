package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fabfab/doc-chat/fault"
)

// A document with fewer characters than this carries no usable content.
const minTextLength = 10

// Extract parses the raw payload according to format and returns plain text.
// Failures are classified as fault.ErrUnsupportedFormat, fault.ErrCorruptFile,
// or fault.ErrEmptyContent.
func Extract(data []byte, format Format) (string, error) {
	var (
		text string
		err  error
	)

	switch format {
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDOCX:
		text, err = extractDOCX(data)
	case FormatCSV:
		text, err = extractCSV(data)
	case FormatText, FormatMarkdown:
		text, err = extractPlain(data)
	case FormatImage:
		return "", fmt.Errorf("image uploads need an OCR backend: %w", fault.ErrUnsupportedFormat)
	default:
		return "", fmt.Errorf("no parser for format %q: %w", format, fault.ErrUnsupportedFormat)
	}
	if err != nil {
		return "", err
	}

	text = normalize(text)
	if utf8.RuneCountInString(text) < minTextLength {
		return "", fmt.Errorf("extracted %d characters: %w", utf8.RuneCountInString(text), fault.ErrEmptyContent)
	}
	return text, nil
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("payload is not valid UTF-8: %w", fault.ErrCorruptFile)
	}
	return string(data), nil
}

func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", fault.ErrCorruptFile)
	}

	var sb strings.Builder
	for _, row := range records {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
