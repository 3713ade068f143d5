package extractor

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/JustJay7/case-archive/pkg/logger"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body +
		`</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDocxParagraphs(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>第一段</w:t></w:r><w:r><w:t xml:space="preserve"> 续写</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:p><w:r><w:t>  </w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>A</w:t><w:tab/><w:t>B</w:t></w:r></w:p>`)

	paragraphs, err := DocxParagraphs(data)
	if err != nil {
		t.Fatalf("DocxParagraphs failed: %v", err)
	}

	want := []string{"第一段 续写", "A\tB"}
	if len(paragraphs) != len(want) {
		t.Fatalf("Expected %d paragraphs, got %d: %q", len(want), len(paragraphs), paragraphs)
	}
	for i := range want {
		if paragraphs[i] != want[i] {
			t.Errorf("Paragraph %d: expected %q, got %q", i, want[i], paragraphs[i])
		}
	}
}

func TestDocxParagraphsNotAWordFile(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("readme.txt")
	w.Write([]byte("hello"))
	zw.Close()

	if _, err := DocxParagraphs(buf.Bytes()); err != ErrNoDocumentXML {
		t.Errorf("Expected ErrNoDocumentXML, got %v", err)
	}
	if _, err := DocxParagraphs([]byte("not a zip")); err == nil {
		t.Error("Expected error for non-zip input")
	}
}

func TestExtract(t *testing.T) {
	e := New(logger.NewNop())
	docx := buildDocx(t, `<w:p><w:r><w:t>one</w:t></w:r></w:p><w:p><w:r><w:t>two</w:t></w:r></w:p>`)

	tests := []struct {
		name     string
		data     []byte
		filename string
		want     string
	}{
		{"docx joins paragraphs", docx, "report.DOCX", "one\ntwo"},
		{"doc uses word parser", docx, "legacy.doc", "one\ntwo"},
		{"broken docx degrades", []byte("garbage"), "broken.docx", ""},
		{"broken pdf degrades", []byte("%PDF-garbage"), "broken.pdf", ""},
		{"image has no text", []byte{0x89, 'P', 'N', 'G'}, "scan.png", ""},
		{"unknown suffix", []byte("plain"), "notes.txt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Extract(tt.data, tt.filename); got != tt.want {
				t.Errorf("Extract(%s) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
