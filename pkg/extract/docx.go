package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// docxMarkupFactor is how much larger than the text cap the decompressed
// document.xml may be; markup outweighs text in real documents.
const docxMarkupFactor = 4

// extractDOCX walks word/document.xml collecting <w:t> runs; paragraphs and
// explicit breaks become newlines, tabs stay tabs.
func extractDOCX(data []byte, maxBytes int64) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: zip has no %s", ErrUnsupported, docxBody)
	}
	maxMarkup := maxBytes * docxMarkupFactor
	if body.UncompressedSize64 > uint64(maxMarkup) {
		return "", fmt.Errorf("%w: %s declares %d bytes", ErrTooLarge, docxBody, body.UncompressedSize64)
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(&cappedReader{r: rc, left: maxMarkup})
	var out strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBody, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
		if int64(out.Len()) > maxBytes {
			return "", fmt.Errorf("%w: more than %d bytes of text", ErrTooLarge, maxBytes)
		}
	}
	return out.String(), nil
}

// cappedReader fails with ErrTooLarge once more than left bytes are read.
// The zip header size is not trusted on its own.
type cappedReader struct {
	r    io.Reader
	left int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.left < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > c.left+1 {
		p = p[:c.left+1]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
