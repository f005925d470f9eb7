// Package scraper discovers contact addresses on a website and enriches them
// with names and roles.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	primaryTimeout   = 10 * time.Second
	secondaryTimeout = 5 * time.Second
	maxSecondary     = 3

	contextBefore = 100
	contextAfter  = 150
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	whitespace   = regexp.MustCompile(`\s+`)

	secondaryHints = []string{"contact", "about", "team"}
)

// Enricher fills in names and roles for scraped leads. Implementations must
// return the input unchanged when they cannot improve it.
type Enricher interface {
	Enrich(ctx context.Context, leads []model.ScrapedLead) []model.ScrapedLead
}

// Extractor crawls one site: the given page plus a few contact-like pages
// linked from it.
type Extractor struct {
	client    *http.Client
	userAgent string
	enricher  Enricher
	logger    *zap.Logger

	primaryTimeout   time.Duration
	secondaryTimeout time.Duration
}

// NewExtractor builds an Extractor. A nil enricher disables enrichment.
func NewExtractor(enricher Enricher, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		client:           &http.Client{},
		userAgent:        defaultUserAgent,
		enricher:         enricher,
		logger:           logger,
		primaryTimeout:   primaryTimeout,
		secondaryTimeout: secondaryTimeout,
	}
}

// Scrape returns the unique addresses found on rawURL and up to three linked
// contact/about/team pages on the same host, in first-seen order.
func (e *Extractor) Scrape(ctx context.Context, rawURL string) ([]model.ScrapedLead, error) {
	base, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	e.logger.Info("🔍 Scraping site", zap.String("url", base.String()))

	doc, err := e.fetch(ctx, base.String(), e.primaryTimeout)
	if err != nil {
		metrics.ScrapePages.WithLabelValues("primary", "error").Inc()
		return nil, fmt.Errorf("failed to fetch %s: %w", base.String(), err)
	}
	metrics.ScrapePages.WithLabelValues("primary", "ok").Inc()

	links := secondaryLinks(doc, base)

	seen := make(map[string]struct{})
	var leads []model.ScrapedLead
	leads = appendEmails(leads, seen, doc, base.String())

	for i, link := range links {
		if i >= maxSecondary {
			break
		}
		if ctx.Err() != nil {
			break
		}
		page, err := e.fetch(ctx, link, e.secondaryTimeout)
		if err != nil {
			metrics.ScrapePages.WithLabelValues("secondary", "error").Inc()
			e.logger.Warn("Skipping secondary page", zap.String("url", link), zap.Error(err))
			continue
		}
		metrics.ScrapePages.WithLabelValues("secondary", "ok").Inc()
		leads = appendEmails(leads, seen, page, link)
	}

	e.logger.Info("✅ Scrape finished",
		zap.String("url", base.String()),
		zap.Int("pages", 1+min(len(links), maxSecondary)),
		zap.Int("leads", len(leads)),
	)

	if len(leads) == 0 || e.enricher == nil {
		return leads, nil
	}
	return e.enricher.Enrich(ctx, leads), nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string, timeout time.Duration) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func normalizeURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}
	return u, nil
}

// secondaryLinks returns absolute same-host links whose href mentions one of
// the contact hints, deduplicated in document order.
func secondaryLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := map[string]struct{}{base.String(): {}}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		lower := strings.ToLower(href)

		matched := false
		for _, hint := range secondaryHints {
			if strings.Contains(lower, hint) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Hostname() != base.Hostname() {
			return
		}
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}

		key := abs.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	})

	return links
}

// appendEmails adds the addresses found in doc's visible text to leads,
// skipping any already in seen.
func appendEmails(leads []model.ScrapedLead, seen map[string]struct{}, doc *goquery.Document, source string) []model.ScrapedLead {
	doc.Find("script, style").Remove()
	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		email := strings.ToLower(text[loc[0]:loc[1]])
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		leads = append(leads, model.ScrapedLead{
			Email:   email,
			Source:  source,
			Context: contextWindow(text, loc[0]),
		})
	}
	return leads
}

// contextWindow returns the text around position start, whitespace collapsed.
func contextWindow(text string, start int) string {
	from := max(start-contextBefore, 0)
	to := min(start+contextAfter, len(text))
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text[from:to], " "))
}
