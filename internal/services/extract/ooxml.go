package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Office Open XML extraction. A .docx or .pptx file is a zip archive of XML
// parts; the visible text lives in `w:t` (word) and `a:t` (drawingml)
// elements, so a streaming decode that collects character data inside those
// elements is enough for analyzer input.

// extractDocx returns the paragraph text of word/document.xml.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a valid docx archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document part: %w", err)
		}
		defer rc.Close()
		return collectRuns(rc, "t", "p")
	}
	return "", fmt.Errorf("docx archive has no word/document.xml")
}

// extractPptx returns the slide text of every ppt/slides/slideN.xml part,
// each slide prefixed with its number.
func extractPptx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a valid pptx archive: %w", err)
	}

	type slidePart struct {
		num  int
		file *zip.File
	}
	var slides []slidePart
	for _, f := range zr.File {
		var num int
		if _, err := fmt.Sscanf(f.Name, "ppt/slides/slide%d.xml", &num); err == nil {
			slides = append(slides, slidePart{num: num, file: f})
		}
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("pptx archive has no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var parts []string
	for _, slide := range slides {
		rc, err := slide.file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open slide %d: %w", slide.num, err)
		}
		text, err := collectRuns(rc, "t", "p")
		rc.Close()
		if err != nil {
			return "", err
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, fmt.Sprintf("Slide %d: %s", slide.num, text))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// collectRuns walks an XML part collecting character data inside textLocal
// elements, inserting a newline at the close of each paraLocal element.
func collectRuns(r io.Reader, textLocal, paraLocal string) (string, error) {
	dec := xml.NewDecoder(r)
	var builder strings.Builder
	depth := 0 // nesting depth inside text elements

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textLocal {
				depth++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textLocal:
				if depth > 0 {
					depth--
				}
			case paraLocal:
				builder.WriteString("\n")
			}
		case xml.CharData:
			if depth > 0 {
				builder.Write(t)
			}
		}
	}
	return strings.TrimSpace(builder.String()), nil
}
