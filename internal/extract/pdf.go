package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfMagic is the file signature every PDF starts with.
var pdfMagic = []byte("%PDF")

// isPDF reports whether the content carries the PDF signature. Detection is
// by content, not extension, so a mislabeled .txt upload still parses.
func isPDF(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

// pdfPlainText extracts the text layer of a PDF, page texts concatenated
// with newlines. A PDF without a text layer (scanned images) yields little
// or no text; the caller's minimum-length guard handles that case.
//
// The pdf library's object resolver panics on malformed objects, and only
// GetPlainText recovers internally — NumPage and Page do not. The recover
// here converts those panics into a document-level error so a corrupt PDF
// fails its own document instead of crashing the process.
func pdfPlainText(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("failed to extract PDF text: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var sb strings.Builder

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", pageNum, err)
		}

		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}
