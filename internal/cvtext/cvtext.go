package cvtext

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
)

const DefaultByteLimit = 2 * 1024 * 1024

var baseDocumentURL = &url.URL{Scheme: "file", Path: "/cv"}

// FromFile extracts plain CV text from an uploaded file based on its
// extension: HTML documents go through readability, plain text is cleaned
// as-is. Binary formats (pdf, doc) are left to the remote extraction service
// and return an error here.
func FromFile(fileName string, content io.Reader) (string, error) {
	body, err := io.ReadAll(io.LimitReader(content, DefaultByteLimit))
	if err != nil {
		return "", fmt.Errorf("read cv file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".html", ".htm":
		return fromHTML(body)
	case ".txt", "", ".text", ".md":
		text := CleanText(string(body))
		if text == "" {
			return "", fmt.Errorf("cv file %s is empty", fileName)
		}
		return text, nil
	default:
		return "", fmt.Errorf("no local text extraction for %s", fileName)
	}
}

func fromHTML(body []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(body), baseDocumentURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}

	text := CleanText(rendered.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	if text == "" {
		return "", fmt.Errorf("extracted empty content from html cv")
	}
	return text, nil
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
