package extraction

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractHTML returns the visible body text with blank lines collapsed.
func extractHTML(_ context.Context, _ string, data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template, head").Remove()

	body := doc.Find("body")
	var raw string
	if body.Length() > 0 {
		raw = body.Text()
	} else {
		raw = doc.Text()
	}
	return collapseBlankLines(raw), nil
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
