package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/deusflow/impactdigest/internal/news"
)

// ErrMalformedResponse marks a backend answer that failed validation.
var ErrMalformedResponse = errors.New("malformed analysis response")

var (
	summaryLabel = regexp.MustCompile(`(?i)^[#*_\s]*(?:ai\s+|gemini\s+)?summary[*_\s]*(?::|：|$)[*_\s]*`)
	impactLabel  = regexp.MustCompile(`(?i)^[#*_\s]*(?:impact|why\s+it\s+matters)[*_\s]*(?::|：|$)[*_\s]*`)
	codeFence    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// parseResponse extracts the summary and impact sections and validates
// them. minImpact is the minimum number of impact points.
func parseResponse(response string, minImpact int) (news.Analysis, error) {
	text := strings.TrimSpace(strings.ReplaceAll(response, "\r", ""))
	if text == "" {
		return news.Analysis{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	summary, impact, ok := parseStructured(text)
	if !ok {
		var err error
		summary, impact, err = parseLabeled(text)
		if err != nil {
			return news.Analysis{}, err
		}
	}

	summaryPoints := news.Points(summary)
	impactPoints := news.Points(impact)
	if len(summaryPoints) == 0 {
		return news.Analysis{}, fmt.Errorf("%w: summary section is empty", ErrMalformedResponse)
	}
	if len(impactPoints) == 0 {
		return news.Analysis{}, fmt.Errorf("%w: impact section is empty", ErrMalformedResponse)
	}
	if len(impactPoints) < minImpact {
		return news.Analysis{}, fmt.Errorf("%w: impact has %d points, want at least %d",
			ErrMalformedResponse, len(impactPoints), minImpact)
	}

	return news.Analysis{
		Summary: strings.Join(summaryPoints, "\n"),
		Impact:  strings.Join(impactPoints, "\n"),
	}, nil
}

// parseStructured accepts {"summary": ..., "impact": ...} where each field
// is a string or a list of strings.
func parseStructured(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "{") {
		return "", "", false
	}
	var obj struct {
		Summary any `json:"summary"`
		Impact  any `json:"impact"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return "", "", false
	}
	if obj.Summary == nil && obj.Impact == nil {
		return "", "", false
	}
	return flatten(obj.Summary), flatten(obj.Impact), true
}

func flatten(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// parseLabeled walks the response line by line; a label line opens a
// section and the following lines belong to it until the next label.
func parseLabeled(text string) (string, string, error) {
	var summary, impact []string
	var current *[]string
	foundSummary, foundImpact := false, false

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch {
		case summaryLabel.MatchString(line):
			foundSummary = true
			current = &summary
			line = summaryLabel.ReplaceAllString(line, "")
		case impactLabel.MatchString(line):
			foundImpact = true
			current = &impact
			line = impactLabel.ReplaceAllString(line, "")
		}
		if current == nil {
			continue
		}
		if line = strings.TrimSpace(line); line != "" {
			*current = append(*current, line)
		}
	}

	if !foundSummary && !foundImpact {
		return "", "", fmt.Errorf("%w: no summary or impact markers", ErrMalformedResponse)
	}
	return strings.Join(summary, "\n"), strings.Join(impact, "\n"), nil
}
