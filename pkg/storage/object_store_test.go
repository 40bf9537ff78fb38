package storage

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"notes.pdf", "notes.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\essay.docx`, "essay.docx"},
		{"a?b#c.txt", "a_b_c.txt"},
		{"tab\tname.md", "tabname.md"},
		{"", "file"},
		{"..", "file"},
		{"Biología 101.pdf", "Biología 101.pdf"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocumentKey(t *testing.T) {
	got := DocumentKey("user-1", "doc-9", "../chapter 1.pdf")
	want := "documents/user-1/doc-9/chapter 1.pdf"
	if got != want {
		t.Fatalf("DocumentKey() = %q, want %q", got, want)
	}
}
