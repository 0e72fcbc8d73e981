package news

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// CandidateItem is one entry discovered from a feed source.
type CandidateItem struct {
	ID          string // canonical link, unique
	Title       string
	Link        string
	Description string
	Source      string // feed URL the item came from
}

// Analysis is the summary/impact pair attached to a published item.
// Summary and Impact are never empty once returned by the summarizer.
type Analysis struct {
	Summary  string
	Impact   string
	Fallback bool // produced locally, not by the AI backend
}

// PublishableItem is a candidate together with its analysis.
type PublishableItem struct {
	CandidateItem
	Analysis
	Date time.Time
}

// NormalizeID builds the dedup key for a link: trimmed, without fragment
// and without utm_* tracking parameters.
func NormalizeID(link string) string {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if strings.HasPrefix(strings.ToLower(k), "utm_") {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

var pointPrefix = regexp.MustCompile(`^(?:\d{1,2}\s*[.):-]|[-*•·–])\s+`)

// Points splits numbered or bulleted text into discrete points: one per
// non-empty line, with the original numbering/bullet removed.
func Points(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(pointPrefix.ReplaceAllString(line, ""))
		line = unwrapEmphasis(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// unwrapEmphasis removes one balanced **...** or __...__ wrapper.
func unwrapEmphasis(s string) string {
	for _, w := range []string{"**", "__"} {
		if len(s) <= 2*len(w) || !strings.HasPrefix(s, w) || !strings.HasSuffix(s, w) {
			continue
		}
		if inner := s[len(w) : len(s)-len(w)]; !strings.Contains(inner, w) {
			return strings.TrimSpace(inner)
		}
	}
	return s
}
