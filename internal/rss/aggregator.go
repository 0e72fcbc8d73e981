// Package rss turns a list of feed URLs into a lazy stream of candidate
// items. Feeds are fetched one by one, only when the stream needs them.
package rss

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/impactdigest/internal/logger"
	"github.com/deusflow/impactdigest/internal/news"
)

// SourceError reports a feed that could not be retrieved or parsed.
// The source contributes no items; the stream carries on.
type SourceError struct {
	URL string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

type Options struct {
	PerSourceLimit int   // entries inspected per feed, most recent first
	Shuffle        bool  // randomize source order per run
	Seed           int64 // shuffle seed; 0 picks one from the clock
}

type Aggregator struct {
	sources []string
	fetcher Fetcher
	opts    Options
}

func NewAggregator(sources []string, fetcher Fetcher, opts Options) *Aggregator {
	if opts.PerSourceLimit <= 0 {
		opts.PerSourceLimit = 2
	}
	return &Aggregator{
		sources: append([]string(nil), sources...),
		fetcher: fetcher,
		opts:    opts,
	}
}

// Stream starts a new pass over the sources. The order is fixed for the
// lifetime of the returned stream.
func (a *Aggregator) Stream() *Stream {
	order := append([]string(nil), a.sources...)
	if a.opts.Shuffle {
		seed := a.opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	logger.Debug("Feed order", "sources", order)
	return &Stream{agg: a, order: order}
}

// Stream is a finite, non-restartable cursor over candidate items.
type Stream struct {
	agg     *Aggregator
	order   []string
	next    int
	pending []news.CandidateItem
	errs    []error
	fetched int
}

// Next returns the next candidate, fetching the next source on demand.
func (s *Stream) Next(ctx context.Context) (news.CandidateItem, bool) {
	for len(s.pending) == 0 {
		if s.next >= len(s.order) || ctx.Err() != nil {
			return news.CandidateItem{}, false
		}
		src := s.order[s.next]
		s.next++
		s.pending = s.load(ctx, src)
	}
	item := s.pending[0]
	s.pending = s.pending[1:]
	return item, true
}

func (s *Stream) load(ctx context.Context, src string) []news.CandidateItem {
	s.fetched++
	feed, err := s.agg.fetcher.Fetch(ctx, src)
	if err != nil {
		serr := &SourceError{URL: src, Err: err}
		s.errs = append(s.errs, serr)
		logger.Warn("Feed skipped", "source", src, "error", err)
		return nil
	}
	items := candidatesFromFeed(feed, src, s.agg.opts.PerSourceLimit)
	logger.Info("Loaded feed", "source", src, "entries", len(feed.Items), "candidates", len(items))
	return items
}

// Errors returns the source failures seen so far.
func (s *Stream) Errors() []error {
	return append([]error(nil), s.errs...)
}

// Fetched is the number of sources contacted so far.
func (s *Stream) Fetched() int {
	return s.fetched
}

// Order is the source order used by this stream.
func (s *Stream) Order() []string {
	return append([]string(nil), s.order...)
}

// candidatesFromFeed inspects only the first limit entries and drops the
// ones without title or link.
func candidatesFromFeed(feed *gofeed.Feed, src string, limit int) []news.CandidateItem {
	if feed == nil {
		return nil
	}
	entries := feed.Items
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]news.CandidateItem, 0, len(entries))
	for _, it := range entries {
		if it == nil {
			continue
		}
		title := strings.TrimSpace(it.Title)
		link := strings.TrimSpace(it.Link)
		if title == "" || link == "" {
			logger.Debug("Skipping malformed entry", "source", src, "title", title, "link", link)
			continue
		}
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			desc = strings.TrimSpace(it.Content)
		}
		out = append(out, news.CandidateItem{
			ID:          news.NormalizeID(link),
			Title:       title,
			Link:        link,
			Description: desc,
			Source:      src,
		})
	}
	return out
}
