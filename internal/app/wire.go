package app

import (
	"context"
	"fmt"

	"github.com/deusflow/impactdigest/internal/blogger"
	"github.com/deusflow/impactdigest/internal/config"
	"github.com/deusflow/impactdigest/internal/gemini"
	"github.com/deusflow/impactdigest/internal/gpt"
	"github.com/deusflow/impactdigest/internal/logger"
	"github.com/deusflow/impactdigest/internal/metrics"
	"github.com/deusflow/impactdigest/internal/render"
	"github.com/deusflow/impactdigest/internal/rss"
	"github.com/deusflow/impactdigest/internal/scraper"
	"github.com/deusflow/impactdigest/internal/storage"
	"github.com/deusflow/impactdigest/internal/summary"
	"github.com/deusflow/impactdigest/internal/telegram"
)

// Build wires a pipeline from cfg. The returned cleanup releases backend
// and database connections and must be called once the run is over.
func Build(ctx context.Context, cfg *config.Config) (*Pipeline, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Pipeline, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)

	backend, resolver, closeBackend, err := newBackend(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeBackend)

	blog, err := blogger.NewClient(ctx, cfg.BloggerID, cfg.BloggerTokenJSON)
	if err != nil {
		return fail(fmt.Errorf("blogger: %w", err))
	}

	chat, err := newChat(cfg)
	if err != nil {
		return fail(err)
	}

	agg := rss.NewAggregator(cfg.Feeds, rss.NewHTTPFetcher(cfg.FeedTimeout, cfg.UserAgent), rss.Options{
		PerSourceLimit: cfg.PerSourceLimit,
		Shuffle:        cfg.ShuffleSources,
	})

	p := &Pipeline{
		Source:  SourceFunc(func() CandidateStream { return agg.Stream() }),
		History: store,
		Analyzer: summary.New(backend, resolver, summary.Options{
			DefaultModel:   cfg.DefaultModel(),
			Points:         cfg.SummaryPoints,
			MinImpactLines: cfg.MinImpactLines,
			FallbackRunes:  cfg.FallbackSummaryRunes,
			Timeout:        cfg.BackendTimeout,
		}),
		Renderer: render.New(render.Options{
			Labels:    cfg.BlogLabels,
			ChatLimit: cfg.ChatLimit(),
		}),
		Blog:        blog,
		Chat:        chat,
		Metrics:     metrics.Global,
		SinkTimeout: cfg.SinkTimeout,
	}
	if cfg.FetchArticleText {
		p.Excerpts = scraper.NewExtractor(cfg.FeedTimeout, cfg.UserAgent)
	}
	return p, cleanup, nil
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.HistoryBackend {
	case config.HistoryPostgres:
		ps, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.HistoryCapacity)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres history: %w", err)
		}
		logger.Info("Using PostgreSQL history")
		return ps, func() { ps.Close() }, nil
	default:
		logger.Info("Using file history", "path", cfg.HistoryFilePath)
		return storage.NewFileStore(cfg.HistoryFilePath, cfg.HistoryCapacity), func() {}, nil
	}
}

func newBackend(ctx context.Context, cfg *config.Config) (summary.Backend, summary.ModelResolver, func(), error) {
	switch cfg.SummaryBackend {
	case config.BackendOpenAI:
		c := gpt.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ModelOrDefault(), cfg.BackendTimeout)
		return c, c, func() {}, nil
	default:
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.ModelOrDefault())
		if err != nil {
			return nil, nil, nil, err
		}
		return c, c, c.Close, nil
	}
}

func newChat(cfg *config.Config) (ChatSink, error) {
	s, err := telegram.NewSender(cfg.TelegramToken, cfg.TelegramChannelID, cfg.SinkTimeout)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return s, nil
}
