package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/ai"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type recordingEnricher struct {
	calls int
	got   []model.ScrapedLead
}

func (r *recordingEnricher) Enrich(_ context.Context, leads []model.ScrapedLead) []model.ScrapedLead {
	r.calls++
	r.got = leads
	return leads
}

type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func newSite(t *testing.T, pages map[string]string) (*httptest.Server, *hitCounter) {
	t.Helper()
	hits := &hitCounter{hits: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.mu.Lock()
		hits.hits[r.URL.Path]++
		hits.mu.Unlock()
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func TestScrape_DedupesCaseInsensitivelyAcrossPages(t *testing.T) {
	srv, _ := newSite(t, map[string]string{
		"/": `<html><body>
			<p>Write to Sales@Acme.io for pricing.</p>
			<a href="/contact">Contact</a>
			<script>var x = "hidden@acme.io";</script>
		</body></html>`,
		"/contact": `<html><body><p>sales@acme.io or jane.doe@acme.io</p></body></html>`,
	})
	enricher := &recordingEnricher{}
	e := NewExtractor(enricher, nil)

	leads, err := e.Scrape(context.Background(), srv.URL)

	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "sales@acme.io", leads[0].Email)
	assert.Equal(t, srv.URL, strings.TrimSuffix(leads[0].Source, "/"))
	assert.Contains(t, leads[0].Context, "Write to Sales@Acme.io for pricing.")
	assert.Equal(t, "jane.doe@acme.io", leads[1].Email)
	assert.Equal(t, srv.URL+"/contact", leads[1].Source)
	assert.Equal(t, 1, enricher.calls)
}

func TestScrape_NoAnchorsNoEmails(t *testing.T) {
	srv, _ := newSite(t, map[string]string{
		"/": `<html><body><h1>Nothing to see</h1></body></html>`,
	})
	enricher := &recordingEnricher{}
	e := NewExtractor(enricher, nil)

	leads, err := e.Scrape(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Empty(t, leads)
	assert.Zero(t, enricher.calls)
}

func TestScrape_FollowsAtMostThreeSameHostLinks(t *testing.T) {
	srv, hits := newSite(t, map[string]string{
		"/": `<html><body>
			<a href="/about">About</a>
			<a href="/about#team">About again</a>
			<a href="/TEAM">Team</a>
			<a href="https://elsewhere.example/contact">External</a>
			<a href="/contact-us">Contact</a>
			<a href="/contact-more">More</a>
			<a href="/pricing">Pricing</a>
		</body></html>`,
		"/about":        `<html><body>a@x.com</body></html>`,
		"/TEAM":         `<html><body>b@x.com</body></html>`,
		"/contact-us":   `<html><body>c@x.com</body></html>`,
		"/contact-more": `<html><body>d@x.com</body></html>`,
	})
	e := NewExtractor(nil, nil)

	leads, err := e.Scrape(context.Background(), srv.URL)

	require.NoError(t, err)
	emails := make([]string, len(leads))
	for i, l := range leads {
		emails[i] = l.Email
	}
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, emails)
	assert.Equal(t, 1, hits.get("/about"))
	assert.Zero(t, hits.get("/contact-more"))
	assert.Zero(t, hits.get("/pricing"))
}

func TestScrape_SecondaryFailureIsSkipped(t *testing.T) {
	srv, hits := newSite(t, map[string]string{
		"/":      `<html><body>owner@shop.io <a href="/contact">c</a> <a href="/about">a</a></body></html>`,
		"/about": `<html><body>help@shop.io</body></html>`,
	})
	e := NewExtractor(nil, nil)

	leads, err := e.Scrape(context.Background(), srv.URL)

	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "owner@shop.io", leads[0].Email)
	assert.Equal(t, "help@shop.io", leads[1].Email)
	assert.Equal(t, 1, hits.get("/contact"))
}

func TestScrape_PrimaryFailure(t *testing.T) {
	srv, _ := newSite(t, map[string]string{})
	e := NewExtractor(nil, nil)

	_, err := e.Scrape(context.Background(), srv.URL)

	assert.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	u, err := normalizeURL("example.com/team")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/team", u.String())

	_, err = normalizeURL("   ")
	assert.Error(t, err)
}

func TestContextWindow_RuneSafe(t *testing.T) {
	text := strings.Repeat("é", 80) + "  mail   me@x.com " + strings.Repeat("ü", 100)
	start := strings.Index(text, "me@x.com")

	got := contextWindow(text, start)

	assert.True(t, strings.Contains(got, "mail me@x.com"))
	assert.True(t, strings.HasPrefix(got, "é"))
	assert.True(t, strings.HasSuffix(got, "ü"))
}

type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, _ ai.Options) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func scraped(emails ...string) []model.ScrapedLead {
	out := make([]model.ScrapedLead, len(emails))
	for i, e := range emails {
		out[i] = model.ScrapedLead{Email: e, Source: "https://x.com", Context: "ctx " + e}
	}
	return out
}

func TestEnrich_MatchesCaseInsensitively(t *testing.T) {
	gen := &stubGenerator{answer: "```json\n" + `[
		{"email": "A@X.com", "name": "Ann", "role": "CTO"},
		{"email": "b@x.com", "name": "", "role": null}
	]` + "\n```"}
	e := NewLLMEnricher(gen, nil)

	out := e.Enrich(context.Background(), scraped("a@x.com", "b@x.com", "c@x.com"))

	require.Len(t, out, 3)
	require.NotNil(t, out[0].Name)
	assert.Equal(t, "Ann", *out[0].Name)
	assert.Equal(t, "CTO", *out[0].Role)
	assert.Nil(t, out[1].Name)
	assert.Nil(t, out[1].Role)
	assert.Nil(t, out[2].Name)
	assert.Contains(t, gen.prompt, "ctx a@x.com")
}

func TestEnrich_UnparsableAnswerReturnsInput(t *testing.T) {
	gen := &stubGenerator{answer: "Sorry, I cannot help with that."}
	e := NewLLMEnricher(gen, nil)
	in := scraped("a@x.com")

	out := e.Enrich(context.Background(), in)

	assert.Equal(t, in, out)
}

func TestEnrich_GeneratorErrorReturnsInput(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota")}
	e := NewLLMEnricher(gen, nil)
	in := scraped("a@x.com", "b@x.com")

	assert.Equal(t, in, e.Enrich(context.Background(), in))
}
