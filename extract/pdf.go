package extract

import (
	"bytes"
	"fmt"
	"io"

	pdf "github.com/ledongthuc/pdf"

	"github.com/fabfab/doc-chat/fault"
)

// The pdf library panics on some malformed inputs instead of returning an
// error, so the whole parse is wrapped in a recover.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parse pdf: %v: %w", r, fault.ErrCorruptFile)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", fault.ErrCorruptFile)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", fault.ErrCorruptFile)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", fault.ErrCorruptFile)
	}

	return buf.String(), nil
}
