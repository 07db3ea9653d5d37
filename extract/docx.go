package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/fabfab/doc-chat/fault"
)

// documentXML mirrors the paragraph/run structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []string `xml:"t"`
}

func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", fault.ErrCorruptFile)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", fault.ErrCorruptFile)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", fault.ErrCorruptFile)
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("parse document.xml: %w", fault.ErrCorruptFile)
		}

		var sb strings.Builder
		for _, paragraph := range doc.Body.Paragraphs {
			for _, run := range paragraph.Runs {
				for _, text := range run.Text {
					sb.WriteString(text)
				}
			}
			sb.WriteString("\n")
		}
		return sb.String(), nil
	}

	return "", fmt.Errorf("docx has no word/document.xml: %w", fault.ErrCorruptFile)
}
