package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads the text layer page by page. Pages that fail to decode
// are skipped; the parser panics on some malformed inputs, which is turned
// into an error.
func extractPDF(data []byte, maxBytes int64) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var pages []string
	var total int64
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if content = strings.TrimSpace(content); content != "" {
			total += int64(len(content))
			if total > maxBytes {
				return "", fmt.Errorf("%w: more than %d bytes of text", ErrTooLarge, maxBytes)
			}
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
