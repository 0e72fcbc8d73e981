// Package scraper extracts readable article text from a web page. It is
// used when a feed entry carries no description of its own.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/impactdigest/internal/logger"
)

const (
	minParagraphLen  = 40
	enoughParagraphs = 3
	maxParagraphs    = 8
)

// Extractor downloads article pages and keeps their main paragraphs.
type Extractor struct {
	client    *http.Client
	userAgent string
}

func NewExtractor(timeout time.Duration, userAgent string) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Excerpt returns the main text of the page at url, paragraphs separated
// by blank lines.
func (e *Extractor) Excerpt(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}

	content := extractContent(doc)
	if content == "" {
		return "", fmt.Errorf("no article text found")
	}
	logger.Debug("Extracted article text", "url", url, "chars", len(content))
	return content, nil
}

// extractContent tries the usual article containers from the most to the
// least specific and stops at the first one with enough paragraphs.
func extractContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, aside, form").Remove()

	selectors := []string{
		"article p",
		".post-content p",
		".entry-content p",
		".article-content p",
		"main p",
		"#content p",
		"p",
	}

	var best []string
	for _, selector := range selectors {
		var paragraphs []string
		seen := make(map[string]bool)
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if len(text) < minParagraphLen || seen[text] {
				return
			}
			seen[text] = true
			paragraphs = append(paragraphs, text)
		})
		if len(paragraphs) > len(best) {
			best = paragraphs
		}
		if len(paragraphs) >= enoughParagraphs {
			break
		}
	}

	if len(best) > maxParagraphs {
		best = best[:maxParagraphs]
	}
	return strings.Join(best, "\n\n")
}
