// Package app runs one publication cycle: select an unseen item, analyze
// it, publish it to the blog and the chat channel, then record it in the
// history.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/impactdigest/internal/logger"
	"github.com/deusflow/impactdigest/internal/metrics"
	"github.com/deusflow/impactdigest/internal/news"
	"github.com/deusflow/impactdigest/internal/render"
	"github.com/deusflow/impactdigest/internal/storage"
)

type Outcome string

const (
	Done    Outcome = "done"
	Skipped Outcome = "skipped"
	Failed  Outcome = "failed"
)

var (
	ErrMissingComponent = errors.New("pipeline is not fully configured")
	ErrHistoryCommit    = errors.New("history commit failed")
)

// SinkError is a failed publish to one sink ("blog" or "chat").
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// CandidateStream is one pass over the configured feeds.
type CandidateStream interface {
	news.Sequence
	Errors() []error
	Fetched() int
}

type Source interface {
	Stream() CandidateStream
}

// SourceFunc adapts a function to Source.
type SourceFunc func() CandidateStream

func (f SourceFunc) Stream() CandidateStream { return f() }

type Analyzer interface {
	Analyze(ctx context.Context, title, link, description string) news.Analysis
}

// BlogSink publishes a document and returns the public post URL.
type BlogSink interface {
	Publish(ctx context.Context, doc render.BlogDocument) (string, error)
}

type ChatSink interface {
	Send(ctx context.Context, text string) error
}

// ExcerptSource supplies article text for items whose feed entry has no
// description.
type ExcerptSource interface {
	Excerpt(ctx context.Context, url string) (string, error)
}

type Pipeline struct {
	Source   Source
	History  storage.Store
	Analyzer Analyzer
	Renderer *render.Renderer
	Blog     BlogSink
	Chat     ChatSink

	Excerpts    ExcerptSource    // optional
	Metrics     *metrics.Metrics // optional
	SinkTimeout time.Duration
	Now         func() time.Time // optional, stamps the item date
}

// Result describes how a run ended.
type Result struct {
	Outcome      Outcome
	Item         news.PublishableItem
	PostURL      string
	ChatErr      error // chat failure, the run still counts as Done
	Err          error // reason for Failed
	SourceErrors []error
	Duration     time.Duration
}

func (r Result) Summary() string {
	switch r.Outcome {
	case Done:
		s := fmt.Sprintf("done: published %q to %s", r.Item.Title, r.PostURL)
		if r.ChatErr != nil {
			s += fmt.Sprintf(" (chat failed: %v)", r.ChatErr)
		}
		return s
	case Skipped:
		return fmt.Sprintf("skipped: no unseen item (%d unavailable sources)", len(r.SourceErrors))
	default:
		return fmt.Sprintf("failed: %v", r.Err)
	}
}

// Run executes the pipeline once. It never panics on sink failures; the
// returned Result says what happened.
func (p *Pipeline) Run(ctx context.Context) Result {
	started := time.Now()
	res := p.run(ctx)
	res.Duration = time.Since(started)

	if p.Metrics != nil {
		if res.Err != nil {
			p.Metrics.SetError(res.Err.Error())
		}
		p.Metrics.RecordRun(string(res.Outcome), res.Duration)
	}

	if res.Outcome == Failed {
		logger.Error("Run finished", "outcome", res.Outcome, "error", res.Err, "took", res.Duration)
	} else {
		logger.Info("Run finished", "outcome", res.Outcome, "summary", res.Summary(), "took", res.Duration)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context) Result {
	if err := p.check(); err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	history, err := p.History.Load(ctx)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("load history: %w", err)}
	}
	logger.Debug("History loaded", "entries", history.Len())

	// SELECT
	stream := p.Source.Stream()
	candidate, err := news.Select(ctx, stream, history.Contains)
	res := Result{SourceErrors: stream.Errors()}
	if p.Metrics != nil {
		p.Metrics.AddSourceFailures(len(res.SourceErrors))
		p.Metrics.AddCandidatesFetched(stream.Fetched())
	}
	if errors.Is(err, news.ErrNoUnseenCandidate) {
		res.Outcome = Skipped
		return res
	}
	if err != nil {
		res.Outcome, res.Err = Failed, fmt.Errorf("select: %w", err)
		return res
	}

	// SUMMARIZE
	candidate = p.withExcerpt(ctx, candidate)
	analysis := p.Analyzer.Analyze(ctx, candidate.Title, candidate.Link, candidate.Description)
	if analysis.Fallback && p.Metrics != nil {
		p.Metrics.IncrementSummaryFallbacks()
	}

	// RENDER
	res.Item = news.PublishableItem{CandidateItem: candidate, Analysis: analysis, Date: p.now()}
	doc, msg := p.Renderer.Render(res.Item)

	// PUBLISH_BLOG
	postURL, err := p.publishBlog(ctx, doc)
	if err != nil {
		res.Outcome, res.Err = Failed, &SinkError{Sink: "blog", Err: err}
		return res
	}
	res.PostURL = postURL

	// PUBLISH_CHAT
	if err := p.sendChat(ctx, msg.Text(postURL)); err != nil {
		res.ChatErr = &SinkError{Sink: "chat", Err: err}
		logger.Warn("Chat delivery failed, blog post stays published", "error", err, "post", postURL)
		if p.Metrics != nil {
			p.Metrics.IncrementChatFailures()
		}
	}

	// COMMIT_HISTORY
	if err := p.commit(ctx, history, candidate.ID); err != nil {
		res.Outcome, res.Err = Failed, fmt.Errorf("%w: %w", ErrHistoryCommit, err)
		return res
	}

	res.Outcome = Done
	return res
}

func (p *Pipeline) check() error {
	var missing []string
	if p.Source == nil {
		missing = append(missing, "source")
	}
	if p.History == nil {
		missing = append(missing, "history")
	}
	if p.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	if p.Renderer == nil {
		missing = append(missing, "renderer")
	}
	if p.Blog == nil {
		missing = append(missing, "blog sink")
	}
	if p.Chat == nil {
		missing = append(missing, "chat sink")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrMissingComponent, missing)
	}
	return nil
}

// withExcerpt fills an empty description from the article page. Failures
// only cost analysis quality.
func (p *Pipeline) withExcerpt(ctx context.Context, item news.CandidateItem) news.CandidateItem {
	if p.Excerpts == nil || strings.TrimSpace(item.Description) != "" {
		return item
	}
	text, err := p.Excerpts.Excerpt(ctx, item.Link)
	if err != nil {
		logger.Warn("Article text unavailable", "link", item.Link, "error", err)
		return item
	}
	item.Description = text
	return item
}

func (p *Pipeline) publishBlog(ctx context.Context, doc render.BlogDocument) (string, error) {
	ctx, cancel := p.sinkContext(ctx)
	defer cancel()
	return p.Blog.Publish(ctx, doc)
}

func (p *Pipeline) sendChat(ctx context.Context, text string) error {
	ctx, cancel := p.sinkContext(ctx)
	defer cancel()
	return p.Chat.Send(ctx, text)
}

// commit records id even if ctx was cancelled after the blog publish:
// the post exists and must not be published again.
func (p *Pipeline) commit(ctx context.Context, history *storage.History, id string) error {
	ctx, cancel := p.sinkContext(context.WithoutCancel(ctx))
	defer cancel()

	history.Add(id)
	if err := p.History.Save(ctx, history); err != nil {
		return err
	}
	logger.Info("History updated", "id", id, "entries", history.Len())
	return nil
}

func (p *Pipeline) sinkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.SinkTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.SinkTimeout)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}
