// Package extract turns uploaded file payloads into plain UTF-8 text.
// Dispatch is over a closed set of supported formats; unknown types fail
// fast instead of attempting a default parse.
package extract

import (
	"path/filepath"
	"strings"
)

// Format enumerates the supported document payload formats.
type Format string

const (
	// FormatUnknown represents an unsupported or undetected format.
	FormatUnknown Format = ""
	// FormatPDF represents PDF documents.
	FormatPDF Format = "pdf"
	// FormatDOCX represents Word documents.
	FormatDOCX Format = "docx"
	// FormatCSV represents comma separated values documents.
	FormatCSV Format = "csv"
	// FormatText represents plain text documents.
	FormatText Format = "txt"
	// FormatMarkdown represents Markdown documents.
	FormatMarkdown Format = "markdown"
	// FormatImage represents image uploads, recognized but not extractable.
	FormatImage Format = "image"
)

// DetectFormat infers a document format from the provided filename's extension.
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return FormatPDF
	case ".docx", ".doc":
		return FormatDOCX
	case ".csv":
		return FormatCSV
	case ".txt":
		return FormatText
	case ".md", ".markdown":
		return FormatMarkdown
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return FormatImage
	default:
		return FormatUnknown
	}
}
