// Package summary turns a news item into a summary/impact analysis using
// an AI backend, falling back to a local summary when the backend fails.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/impactdigest/internal/logger"
	"github.com/deusflow/impactdigest/internal/news"
)

const (
	GenericSummary = "A new development in AI was reported. Read the full story for the details."
	GenericImpact  = "Significant industry impact expected. Check the full article for details."

	maxExcerptRunes = 1500
)

// ErrBackend wraps any failure of the backend call itself.
var ErrBackend = errors.New("analysis backend failed")

// Backend generates text for a prompt with the given model.
type Backend interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ModelResolver decides which model the backend should use.
type ModelResolver interface {
	ResolveModel(ctx context.Context) (string, error)
}

// StaticModel resolves to a fixed, configured model identifier.
type StaticModel string

func (m StaticModel) ResolveModel(context.Context) (string, error) {
	if strings.TrimSpace(string(m)) == "" {
		return "", errors.New("no model configured")
	}
	return string(m), nil
}

type Options struct {
	DefaultModel   string // used whenever resolution fails
	Points         int    // points requested per section
	MinImpactLines int    // fewer impact points means a malformed answer
	FallbackRunes  int    // length bound of the fallback summary
	Timeout        time.Duration
}

type Summarizer struct {
	backend  Backend
	resolver ModelResolver
	opts     Options

	once  sync.Once
	model string
}

func New(backend Backend, resolver ModelResolver, opts Options) *Summarizer {
	if opts.Points <= 0 {
		opts.Points = 5
	}
	if opts.MinImpactLines <= 0 {
		opts.MinImpactLines = 1
	}
	if opts.FallbackRunes <= 0 {
		opts.FallbackRunes = 280
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Summarizer{backend: backend, resolver: resolver, opts: opts}
}

// Analyze never fails: any backend or validation problem yields the
// deterministic fallback analysis.
func (s *Summarizer) Analyze(ctx context.Context, title, link, description string) news.Analysis {
	analysis, err := s.analyzeRemote(ctx, title, link, description)
	if err == nil {
		logger.Info("AI analysis ready", "title", title)
		return analysis
	}
	logger.Warn("AI analysis degraded, using fallback", "title", title, "error", err)
	return s.Fallback(title, description)
}

func (s *Summarizer) analyzeRemote(ctx context.Context, title, link, description string) (news.Analysis, error) {
	if s.backend == nil {
		return news.Analysis{}, fmt.Errorf("%w: no backend configured", ErrBackend)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	model := s.Model(ctx)
	prompt := BuildPrompt(title, link, PlainText(description), s.opts.Points)

	started := time.Now()
	response, err := s.backend.Generate(ctx, model, prompt)
	if err != nil {
		return news.Analysis{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	logger.Debug("Backend answered", "model", model, "took", time.Since(started), "chars", len(response))

	return parseResponse(response, s.opts.MinImpactLines)
}

// Model resolves the backend model once; failures fall back to the
// configured default.
func (s *Summarizer) Model(ctx context.Context) string {
	s.once.Do(func() {
		s.model = s.opts.DefaultModel
		if s.resolver == nil {
			return
		}
		m, err := s.resolver.ResolveModel(ctx)
		if err != nil || strings.TrimSpace(m) == "" {
			logger.Warn("Model resolution failed, using default", "default", s.opts.DefaultModel, "error", err)
			return
		}
		s.model = m
	})
	return s.model
}

// Fallback builds the local analysis from the description, or the title
// when the description is empty.
func (s *Summarizer) Fallback(title, description string) news.Analysis {
	text := PlainText(description)
	if text == "" {
		text = strings.Join(strings.Fields(title), " ")
	}
	if text == "" {
		text = GenericSummary
	}
	return news.Analysis{
		Summary:  Truncate(text, s.opts.FallbackRunes),
		Impact:   GenericImpact,
		Fallback: true,
	}
}

// BuildPrompt asks for two labeled sections with a fixed number of points.
func BuildPrompt(title, link, excerpt string, points int) string {
	excerpt = Truncate(excerpt, maxExcerptRunes)
	if excerpt == "" {
		excerpt = "(no description)"
	}
	return fmt.Sprintf(`Analyze this AI news article.

Title: %s
Link: %s
Description: %s

Answer in exactly this format, plain text, no markdown, no extra commentary:

SUMMARY:
1. <what happened>
... exactly %d numbered points, one sentence each

IMPACT:
1. <why it matters>
... exactly %d numbered points, one sentence each
`, title, link, excerpt, points, points)
}
