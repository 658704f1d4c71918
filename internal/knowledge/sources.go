package knowledge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedType is returned for uploads that are not PDF, PPTX or text.
var ErrUnsupportedType = errors.New("unsupported file type")

const (
	maxPDFPages   = 500
	maxPPTXSlides = 200
)

// Document is extracted text ready for ingestion.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// DocumentFromFile extracts text from an uploaded file. The extension
// selects the parser.
func DocumentFromFile(filename string, data []byte) (Document, error) {
	name := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(name))

	var (
		text   string
		source string
		err    error
	)
	switch ext {
	case ".pdf":
		source = "pdf"
		text, err = pdfText(data)
	case ".pptx":
		source = "pptx"
		text, err = pptxText(data)
	case ".txt", ".md":
		source = "txt"
		if !utf8.Valid(data) {
			err = errors.New("text file is not valid UTF-8")
		}
		text = string(data)
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if err != nil {
		return Document{}, fmt.Errorf("extract %s text: %w", source, err)
	}
	if strings.TrimSpace(text) == "" {
		return Document{}, fmt.Errorf("extract %s text: no text found in %s", source, name)
	}

	return Document{
		ID:   source + "_" + name,
		Text: text,
		Metadata: map[string]string{
			"source":   source,
			"filename": name,
		},
	}, nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	total := r.NumPage()
	if total == 0 {
		return "", errors.New("pdf has no pages")
	}
	if total > maxPDFPages {
		return "", fmt.Errorf("pdf has too many pages (%d), max %d", total, maxPDFPages)
	}

	var b strings.Builder
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(strings.Join(strings.Fields(text), " "))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func pptxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(path.Base(f.Name), "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: num, file: f})
	}
	if len(slides) == 0 {
		return "", errors.New("pptx has no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	if len(slides) > maxPPTXSlides {
		slides = slides[:maxPPTXSlides]
	}

	var b strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			continue
		}
		b.WriteString(slideText(content))
	}
	return b.String(), nil
}

// slideText collects DrawingML paragraph text from one slide.
func slideText(content []byte) string {
	var out, para strings.Builder
	inPara := false
	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" && strings.Contains(t.Name.Space, "drawingml") {
				inPara = true
				para.Reset()
			}
		case xml.EndElement:
			if t.Name.Local == "p" && strings.Contains(t.Name.Space, "drawingml") {
				if para.Len() > 0 {
					out.WriteString(para.String())
					out.WriteString("\n")
				}
				inPara = false
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text != "" && inPara {
				if para.Len() > 0 {
					para.WriteString(" ")
				}
				para.WriteString(text)
			}
		}
	}
	return out.String()
}
