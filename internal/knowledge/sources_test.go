package knowledge

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

const slideXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>%s</a:t></a:r><a:r><a:t>overview</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`

func buildPPTX(t *testing.T, slides map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, text := range slides {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(strings.Replace(slideXML, "%s", text, 1))); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDocumentFromPPTX(t *testing.T) {
	t.Parallel()

	data := buildPPTX(t, map[string]string{
		"ppt/slides/slide2.xml":  "Automation",
		"ppt/slides/slide1.xml":  "Chatbot",
		"ppt/slides/slide10.xml": "Analytics",
	})
	doc, err := DocumentFromFile("deck.pptx", data)
	if err != nil {
		t.Fatalf("DocumentFromFile failed: %v", err)
	}
	if doc.ID != "pptx_deck.pptx" || doc.Metadata["source"] != "pptx" {
		t.Fatalf("unexpected document header: %+v", doc)
	}
	want := "Chatbot overview\nAutomation overview\nAnalytics overview\n"
	if doc.Text != want {
		t.Fatalf("Text = %q, want %q", doc.Text, want)
	}
}

func TestDocumentFromText(t *testing.T) {
	t.Parallel()

	doc, err := DocumentFromFile("/tmp/uploads/faq.TXT", []byte("We offer AI consulting."))
	if err != nil {
		t.Fatalf("DocumentFromFile failed: %v", err)
	}
	if doc.ID != "txt_faq.TXT" || doc.Metadata["filename"] != "faq.TXT" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestDocumentFromFileErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		filename    string
		data        []byte
		unsupported bool
	}{
		{"unsupported extension", "sheet.xlsx", []byte("x"), true},
		{"no extension", "README", []byte("x"), true},
		{"broken pdf", "broken.pdf", []byte("not a pdf"), false},
		{"broken pptx", "broken.pptx", []byte("not a zip"), false},
		{"empty text", "empty.txt", []byte("   "), false},
		{"invalid utf8", "bin.txt", []byte{0xff, 0xfe, 0xfd}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DocumentFromFile(tt.filename, tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnsupportedType); got != tt.unsupported {
				t.Fatalf("errors.Is(ErrUnsupportedType) = %v, want %v (err=%v)", got, tt.unsupported, err)
			}
		})
	}
}
