package cvtext

import (
	"strings"
	"testing"
)

func TestFromFile_PlainText(t *testing.T) {
	t.Parallel()

	text, err := FromFile("cv.txt", strings.NewReader("John Smith\r\n\r\nForklift  operator\r\n"))
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if text != "John Smith\n\nForklift operator" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestFromFile_EmptyText(t *testing.T) {
	t.Parallel()

	if _, err := FromFile("cv.txt", strings.NewReader("   \n\n")); err == nil {
		t.Fatalf("expected error for empty cv")
	}
}

func TestFromFile_UnsupportedBinary(t *testing.T) {
	t.Parallel()

	if _, err := FromFile("cv.pdf", strings.NewReader("%PDF-1.7")); err == nil {
		t.Fatalf("expected error for binary format")
	}
}

func TestCleanText_CollapsesWhitespace(t *testing.T) {
	t.Parallel()

	got := CleanText("  line one \r\n\r\n\r\n line   two  ")
	if got != "line one\n\nline two" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}
