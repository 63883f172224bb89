package extract

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// SplitClaims splits chunk text into at most limit claim sentences. Claims
// are split on periods only, matching how the graph was populated.
func SplitClaims(text string, limit int) []string {
	var claims []string
	for _, part := range strings.Split(strings.ReplaceAll(text, "\n", " "), ".") {
		if s := strings.TrimSpace(part); s != "" {
			claims = append(claims, s)
		}
		if limit > 0 && len(claims) >= limit {
			break
		}
	}
	return claims
}

// ClaimID returns the graph id of the index-th claim of a chunk
func ClaimID(chunkID string, index int) string {
	return fmt.Sprintf("%s::claim::%d", chunkID, index)
}

// SplitSentences splits text after '.', '!' or '?' followed by whitespace
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// QualifyingSentences returns up to max sentences that start with a capital
// letter and are at least 20 characters long
func QualifyingSentences(text string, max int) []string {
	var out []string
	for _, s := range SplitSentences(text) {
		if len(s) < 20 {
			continue
		}
		first := []rune(s)[0]
		if first < 'A' || first > 'Z' {
			continue
		}
		out = append(out, s)
		if len(out) >= max {
			break
		}
	}
	return out
}

// VisibleText extracts text nodes from HTML, skipping scripts/styles
func VisibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return extractVisibleText(doc), nil
}

func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return strings.TrimSpace(buf.String())
}
