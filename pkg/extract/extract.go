// Package extract turns uploaded study files into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrNoText      = errors.New("no text extracted")
	ErrTooLarge    = errors.New("extracted content too large")
)

// DefaultMaxTextBytes bounds both decompressed document markup and the
// extracted text when ExtractText is used.
const DefaultMaxTextBytes int64 = 64 << 20

// Kind identifies a supported input format.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindDOCX     Kind = "docx"
	KindHTML     Kind = "html"
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
)

var extensionKinds = map[string]Kind{
	".pdf":      KindPDF,
	".docx":     KindDOCX,
	".html":     KindHTML,
	".htm":      KindHTML,
	".md":       KindMarkdown,
	".markdown": KindMarkdown,
	".txt":      KindText,
}

// Supported reports whether filename has an extension ExtractText handles.
func Supported(filename string) bool {
	_, ok := extensionKinds[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions lists the accepted file extensions.
func Extensions() []string {
	return []string{".pdf", ".docx", ".md", ".txt", ".html", ".htm"}
}

// ContentType returns the MIME type stored alongside an upload.
func ContentType(kind Kind) string {
	switch kind {
	case KindPDF:
		return "application/pdf"
	case KindDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case KindHTML:
		return "text/html; charset=utf-8"
	case KindMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Detect resolves the format from the extension, falling back to sniffing
// the leading bytes when the extension is missing or unknown.
func Detect(filename string, data []byte) (Kind, error) {
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(filename))]; ok {
		return kind, nil
	}
	switch {
	case isPDF(data):
		return KindPDF, nil
	case isZip(data):
		return KindDOCX, nil
	case looksLikeHTML(data):
		return KindHTML, nil
	case isProbablyText(data):
		return KindText, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filename)
}

// ExtractText returns the normalized plain text of data, limited to
// DefaultMaxTextBytes.
func ExtractText(filename string, data []byte) (string, error) {
	return ExtractTextLimit(filename, data, DefaultMaxTextBytes)
}

// ExtractTextLimit is ExtractText with an explicit cap on decompressed and
// extracted bytes. Exceeding it returns ErrTooLarge.
func ExtractTextLimit(filename string, data []byte, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTextBytes
	}
	if len(data) == 0 {
		return "", ErrNoText
	}
	kind, err := Detect(filename, data)
	if err != nil {
		return "", err
	}
	var text string
	switch kind {
	case KindPDF:
		text, err = extractPDF(data, maxBytes)
	case KindDOCX:
		text, err = extractDOCX(data, maxBytes)
	case KindHTML:
		text, err = extractHTML(data)
	default:
		if !isProbablyText(data) {
			return "", fmt.Errorf("%w: %s is not text", ErrUnsupported, filename)
		}
		text = string(data)
	}
	if err != nil {
		return "", err
	}
	if int64(len(text)) > maxBytes {
		return "", fmt.Errorf("%w: more than %d bytes of text", ErrTooLarge, maxBytes)
	}
	text = Normalize(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Normalize drops control and zero-width characters, collapses runs of
// blanks within a line and keeps at most one empty line between paragraphs.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t':
			return r
		case '\u00A0':
			return ' '
		case '\uFEFF', '\u200B', '\u200C', '\u200D', '\u2060', '\u00AD':
			return -1
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 {
				blank = true
			}
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

func isZip(b []byte) bool {
	return bytes.HasPrefix(b, []byte("PK\x03\x04"))
}

func looksLikeHTML(b []byte) bool {
	head := strings.ToLower(strings.TrimSpace(string(b[:min(len(b), 512)])))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	if bytes.IndexByte(sample, 0) >= 0 {
		return false
	}
	// A multi-byte rune may be cut at the sample boundary.
	for i := 0; i < 3 && !utf8.Valid(sample) && len(sample) > 0; i++ {
		sample = sample[:len(sample)-1]
	}
	return utf8.Valid(sample)
}
