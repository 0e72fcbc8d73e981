package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/impactdigest/internal/metrics"
	"github.com/deusflow/impactdigest/internal/news"
	"github.com/deusflow/impactdigest/internal/render"
	"github.com/deusflow/impactdigest/internal/rss"
	"github.com/deusflow/impactdigest/internal/storage"
	"github.com/deusflow/impactdigest/internal/summary"
	"github.com/deusflow/impactdigest/internal/telegram"
)

type feedFetcher struct {
	feeds   map[string]*gofeed.Feed
	fetched []string
}

func (f *feedFetcher) Fetch(_ context.Context, url string) (*gofeed.Feed, error) {
	f.fetched = append(f.fetched, url)
	feed, ok := f.feeds[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return feed, nil
}

func feed(links ...string) *gofeed.Feed {
	f := &gofeed.Feed{}
	for _, l := range links {
		f.Items = append(f.Items, &gofeed.Item{Title: "Title of " + l, Link: l, Description: "<p>About " + l + "</p>"})
	}
	return f
}

type fakeAnalyzer struct{ calls int }

func (a *fakeAnalyzer) Analyze(_ context.Context, title, _, _ string) news.Analysis {
	a.calls++
	return news.Analysis{Summary: "1. " + title + "\n2. second", Impact: "1. a\n2. b\n3. c"}
}

type fakeBlog struct {
	calls int
	err   error
	docs  []render.BlogDocument
}

func (b *fakeBlog) Publish(_ context.Context, doc render.BlogDocument) (string, error) {
	b.calls++
	b.docs = append(b.docs, doc)
	if b.err != nil {
		return "", b.err
	}
	return "https://blog.example/post", nil
}

type fakeChat struct {
	calls int
	err   error
	texts []string
}

func (c *fakeChat) Send(_ context.Context, text string) error {
	c.calls++
	c.texts = append(c.texts, text)
	return c.err
}

type failingStore struct {
	loadErr, saveErr error
	saved            []string
}

func (s *failingStore) Load(context.Context) (*storage.History, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return storage.NewHistory(10), nil
}

func (s *failingStore) Save(_ context.Context, h *storage.History) error {
	s.saved = h.IDs()
	return s.saveErr
}

type fixture struct {
	fetcher *feedFetcher
	store   *storage.FileStore
	blog    *fakeBlog
	chat    *fakeChat
	metrics *metrics.Metrics
	p       *Pipeline
}

func newFixture(t *testing.T, feeds map[string]*gofeed.Feed, order []string, seen ...string) *fixture {
	t.Helper()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "history.json"), 500)
	if len(seen) > 0 {
		if err := store.Save(context.Background(), storage.NewHistoryFrom(500, seen)); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}

	f := &fixture{
		fetcher: &feedFetcher{feeds: feeds},
		store:   store,
		blog:    &fakeBlog{},
		chat:    &fakeChat{},
		metrics: &metrics.Metrics{},
	}
	agg := rss.NewAggregator(order, f.fetcher, rss.Options{PerSourceLimit: 2})
	f.p = &Pipeline{
		Source:      SourceFunc(func() CandidateStream { return agg.Stream() }),
		History:     store,
		Analyzer:    &fakeAnalyzer{},
		Renderer:    render.New(render.Options{Labels: []string{"AI News"}, ChatLimit: 4000}),
		Blog:        f.blog,
		Chat:        f.chat,
		Metrics:     f.metrics,
		SinkTimeout: time.Second,
		Now:         func() time.Time { return time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC) },
	}
	return f
}

func (f *fixture) historyIDs(t *testing.T) []string {
	t.Helper()
	h, err := f.store.Load(context.Background())
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	return h.IDs()
}

func TestRun_SelectsFirstUnseenAcrossSources(t *testing.T) {
	const x, y = "https://one.example/x", "https://two.example/y"
	f := newFixture(t, map[string]*gofeed.Feed{
		"feed1": feed(x),
		"feed2": feed(y),
	}, []string{"feed1", "feed2"}, x)

	res := f.p.Run(context.Background())
	if res.Outcome != Done {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	if res.Item.ID != y {
		t.Errorf("selected %q, want %q", res.Item.ID, y)
	}
	if res.PostURL != "https://blog.example/post" {
		t.Errorf("PostURL = %q", res.PostURL)
	}
	if len(f.chat.texts) != 1 || !strings.Contains(f.chat.texts[0], "(https://blog.example/post)") {
		t.Errorf("chat message should link the blog post: %v", f.chat.texts)
	}
	if got := f.historyIDs(t); len(got) != 2 || got[1] != y {
		t.Errorf("history = %v", got)
	}
	if !res.Item.Date.Equal(time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", res.Item.Date)
	}
}

func TestRun_StopsFetchingAfterMatch(t *testing.T) {
	f := newFixture(t, map[string]*gofeed.Feed{
		"feed1": feed("https://one.example/new"),
		"feed2": feed("https://two.example/other"),
	}, []string{"feed1", "feed2"})

	if res := f.p.Run(context.Background()); res.Outcome != Done {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(f.fetcher.fetched) != 1 {
		t.Errorf("expected only the first source to be fetched, got %v", f.fetcher.fetched)
	}
}

func TestRun_BackendTimeoutUsesFallback(t *testing.T) {
	f := newFixture(t, map[string]*gofeed.Feed{
		"feed1": {Items: []*gofeed.Item{{
			Title:       "Slow news",
			Link:        "https://one.example/slow",
			Description: "<p>" + strings.Repeat("word ", 200) + "</p>",
		}}},
	}, []string{"feed1"})
	f.p.Analyzer = summary.New(slowBackend{}, summary.StaticModel("m"), summary.Options{
		DefaultModel:  "m",
		FallbackRunes: 50,
		Timeout:       20 * time.Millisecond,
	})

	res := f.p.Run(context.Background())
	if res.Outcome != Done {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	if !res.Item.Fallback || !strings.HasSuffix(res.Item.Summary, "...") {
		t.Errorf("expected truncated fallback summary, got %+v", res.Item.Analysis)
	}
	if res.Item.Impact != summary.GenericImpact {
		t.Errorf("impact = %q", res.Item.Impact)
	}
	if f.metrics.SummaryFallbacks != 1 {
		t.Errorf("fallbacks = %d", f.metrics.SummaryFallbacks)
	}
}

type slowBackend struct{}

func (slowBackend) Generate(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRun_BlogFailureStopsRun(t *testing.T) {
	f := newFixture(t, map[string]*gofeed.Feed{
		"feed1": feed("https://one.example/x"),
	}, []string{"feed1"})
	f.blog.err = errors.New("quota exceeded")

	res := f.p.Run(context.Background())
	if res.Outcome != Failed {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	var se *SinkError
	if !errors.As(res.Err, &se) || se.Sink != "blog" {
		t.Errorf("expected blog SinkError, got %v", res.Err)
	}
	if f.chat.calls != 0 {
		t.Error("chat must not be called after a blog failure")
	}
	if got := f.historyIDs(t); len(got) != 0 {
		t.Errorf("history must stay unchanged, got %v", got)
	}
	if f.metrics.Failed != 1 || f.metrics.LastError == "" {
		t.Errorf("metrics not updated: %+v", f.metrics.GetStats())
	}
}

func TestRun_ChatFailureStillDone(t *testing.T) {
	const x = "https://one.example/x"
	f := newFixture(t, map[string]*gofeed.Feed{"feed1": feed(x)}, []string{"feed1"})
	f.chat.err = errors.New("Bad Request: can't parse entities")

	res := f.p.Run(context.Background())
	if res.Outcome != Done {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	var se *SinkError
	if !errors.As(res.ChatErr, &se) || se.Sink != "chat" {
		t.Errorf("expected chat SinkError, got %v", res.ChatErr)
	}
	if got := f.historyIDs(t); len(got) != 1 || got[0] != x {
		t.Errorf("history = %v, want [%s]", got, x)
	}
	if f.metrics.ChatFailures != 1 || f.metrics.Published != 1 {
		t.Errorf("metrics = %v", f.metrics.GetStats())
	}
	if !strings.Contains(res.Summary(), "chat failed") {
		t.Errorf("summary = %q", res.Summary())
	}
}

func TestRun_AllSeenIsSkipped(t *testing.T) {
	const a, b, c = "https://one.example/a", "https://one.example/b", "https://two.example/c"
	f := newFixture(t, map[string]*gofeed.Feed{
		"feed1": feed(a, b),
		"feed2": feed(c),
	}, []string{"feed1", "feed2", "feed3"}, a, b, c)

	res := f.p.Run(context.Background())
	if res.Outcome != Skipped {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	if f.blog.calls != 0 || f.chat.calls != 0 {
		t.Error("no sink may be called when nothing is new")
	}
	if got := f.historyIDs(t); len(got) != 3 {
		t.Errorf("history changed: %v", got)
	}
	if len(res.SourceErrors) != 1 {
		t.Errorf("expected feed3 to be reported unavailable, got %v", res.SourceErrors)
	}
	if f.metrics.Skipped != 1 || f.metrics.SourceFailures != 1 {
		t.Errorf("metrics = %v", f.metrics.GetStats())
	}
}

func TestRun_HistoryLoadFailure(t *testing.T) {
	f := newFixture(t, map[string]*gofeed.Feed{"feed1": feed("https://one.example/x")}, []string{"feed1"})
	f.p.History = &failingStore{loadErr: errors.New("connection refused")}

	res := f.p.Run(context.Background())
	if res.Outcome != Failed {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(f.fetcher.fetched) != 0 || f.blog.calls != 0 {
		t.Error("nothing may run without history")
	}
}

func TestRun_HistoryCommitFailure(t *testing.T) {
	f := newFixture(t, map[string]*gofeed.Feed{"feed1": feed("https://one.example/x")}, []string{"feed1"})
	store := &failingStore{saveErr: errors.New("disk full")}
	f.p.History = store

	res := f.p.Run(context.Background())
	if res.Outcome != Failed || !errors.Is(res.Err, ErrHistoryCommit) {
		t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if res.PostURL == "" {
		t.Error("post URL must still be reported")
	}
	if len(store.saved) != 1 || store.saved[0] != "https://one.example/x" {
		t.Errorf("saved = %v", store.saved)
	}
}

func TestRun_CommitSurvivesCancellation(t *testing.T) {
	f := newFixture(t, map[string]*gofeed.Feed{"feed1": feed("https://one.example/x")}, []string{"feed1"})
	ctx, cancel := context.WithCancel(context.Background())
	f.p.Chat = chatFunc(func(context.Context, string) error {
		cancel()
		return context.Canceled
	})

	res := f.p.Run(ctx)
	if res.Outcome != Done {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	if got := f.historyIDs(t); len(got) != 1 {
		t.Errorf("history = %v", got)
	}
}

type chatFunc func(context.Context, string) error

func (f chatFunc) Send(ctx context.Context, text string) error { return f(ctx, text) }

func TestRun_MissingComponents(t *testing.T) {
	res := (&Pipeline{}).Run(context.Background())
	if res.Outcome != Failed || !errors.Is(res.Err, ErrMissingComponent) {
		t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
	}
}

func TestRun_HistoryStaysBounded(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewFileStore(filepath.Join(dir, "history.json"), 3)
	blog, chat := &fakeBlog{}, &fakeChat{}

	links := []string{"https://e.example/1", "https://e.example/2", "https://e.example/3", "https://e.example/4", "https://e.example/5"}
	for i, link := range links {
		agg := rss.NewAggregator([]string{"feed"}, &feedFetcher{feeds: map[string]*gofeed.Feed{"feed": feed(link)}}, rss.Options{})
		p := &Pipeline{
			Source:   SourceFunc(func() CandidateStream { return agg.Stream() }),
			History:  store,
			Analyzer: &fakeAnalyzer{},
			Renderer: render.New(render.Options{}),
			Blog:     blog,
			Chat:     chat,
		}
		if res := p.Run(context.Background()); res.Outcome != Done {
			t.Fatalf("run %d: outcome = %s (%v)", i, res.Outcome, res.Err)
		}
	}

	h, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := links[2:]
	got := h.IDs()
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}
}

type excerptFunc func(context.Context, string) (string, error)

func (f excerptFunc) Excerpt(ctx context.Context, url string) (string, error) { return f(ctx, url) }

type recordingAnalyzer struct{ description string }

func (a *recordingAnalyzer) Analyze(_ context.Context, _, _, description string) news.Analysis {
	a.description = description
	return news.Analysis{Summary: "s", Impact: "i"}
}

func TestRun_FillsEmptyDescriptionFromArticle(t *testing.T) {
	f := newFixture(t, map[string]*gofeed.Feed{
		"feed1": {Items: []*gofeed.Item{{Title: "No description", Link: "https://one.example/bare"}}},
	}, []string{"feed1"})
	analyzer := &recordingAnalyzer{}
	f.p.Analyzer = analyzer
	var asked string
	f.p.Excerpts = excerptFunc(func(_ context.Context, url string) (string, error) {
		asked = url
		return "Full article text.", nil
	})

	if res := f.p.Run(context.Background()); res.Outcome != Done {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	if asked != "https://one.example/bare" || analyzer.description != "Full article text." {
		t.Errorf("asked %q, analyzer saw %q", asked, analyzer.description)
	}
}

func TestRun_ExcerptFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, map[string]*gofeed.Feed{
		"feed1": {Items: []*gofeed.Item{{Title: "No description", Link: "https://one.example/bare"}}},
	}, []string{"feed1"})
	f.p.Excerpts = excerptFunc(func(context.Context, string) (string, error) {
		return "", errors.New("HTTP error: 403")
	})

	if res := f.p.Run(context.Background()); res.Outcome != Done {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
}

func TestRun_TelegramDownStillPublishesBlog(t *testing.T) {
	const x = "https://one.example/x"
	f := newFixture(t, map[string]*gofeed.Feed{"feed1": feed(x)}, []string{"feed1"})

	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/bot%s/%s"
	srv.Close()
	sender, err := telegram.NewSenderWithEndpoint("123:token", "@ai_digest", endpoint, time.Second)
	if err != nil {
		t.Fatalf("building the chat sink must not need Telegram: %v", err)
	}
	f.p.Chat = sender

	res := f.p.Run(context.Background())
	if res.Outcome != Done {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
	}
	if f.blog.calls != 1 || res.PostURL == "" {
		t.Errorf("blog should be published, calls=%d url=%q", f.blog.calls, res.PostURL)
	}
	var se *SinkError
	if !errors.As(res.ChatErr, &se) || se.Sink != "chat" {
		t.Errorf("expected chat SinkError, got %v", res.ChatErr)
	}
	if got := f.historyIDs(t); len(got) != 1 || got[0] != x {
		t.Errorf("history = %v, want [%s]", got, x)
	}
}
