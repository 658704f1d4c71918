package knowledge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "leadbot-crawler/1.0"
	maxPageBytes     = 5 << 20
	maxRobotsBytes   = 1 << 20
	maxCrawlDelay    = 10 * time.Second
)

// seedPaths are always tried before discovered links.
var seedPaths = []string{"/", "/about", "/services", "/products"}

// CrawlerConfig controls a Crawler.
type CrawlerConfig struct {
	MaxPages  int
	Rate      float64 // requests per second
	UserAgent string
	Client    *http.Client
}

// Crawler fetches same-host pages and extracts their main text.
type Crawler struct {
	client    *http.Client
	userAgent string
	maxPages  int
	limiter   *rate.Limiter
	robots    *cache.Cache
	pages     *cache.Cache
	log       *slog.Logger
}

// NewCrawler returns a Crawler. Zero config values fall back to defaults.
func NewCrawler(cfg CrawlerConfig, logger *slog.Logger) *Crawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		client:    cfg.Client,
		userAgent: cfg.UserAgent,
		maxPages:  cfg.MaxPages,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		robots:    cache.New(24*time.Hour, time.Hour),
		pages:     cache.New(time.Hour, 10*time.Minute),
		log:       logger,
	}
}

// Crawl visits the seed pages of baseURL and same-host links found on them,
// up to the configured page budget. Pages that fail are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, baseURL string) ([]Document, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid site url %q", baseURL)
	}

	queue := make([]string, 0, len(seedPaths))
	seen := make(map[string]struct{})
	for _, p := range seedPaths {
		u := *base
		u.Path = p
		queue = append(queue, u.String())
		seen[u.String()] = struct{}{}
	}

	var docs []Document
	for visited := 0; len(queue) > 0 && visited < c.maxPages; visited++ {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		pageURL := queue[0]
		queue = queue[1:]

		doc, links, err := c.page(ctx, base, pageURL)
		if err != nil {
			c.log.Warn("crawl page failed", "url", pageURL, "error", err)
			continue
		}
		if doc.Text != "" {
			docs = append(docs, doc)
		}
		for _, l := range links {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			queue = append(queue, l)
		}
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no pages crawled from %s", base.String())
	}
	c.log.Info("crawl completed", "site", base.String(), "pages", len(docs))
	return docs, nil
}

type cachedPage struct {
	doc   Document
	links []string
}

func (c *Crawler) page(ctx context.Context, base *url.URL, pageURL string) (Document, []string, error) {
	if v, ok := c.pages.Get(pageURL); ok {
		p := v.(cachedPage)
		return p.doc, p.links, nil
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return Document{}, nil, fmt.Errorf("parse url: %w", err)
	}
	allowed, delay := c.allowed(ctx, u)
	if !allowed {
		return Document{}, nil, errors.New("blocked by robots.txt")
	}
	if delay > 0 && rate.Every(delay) < c.limiter.Limit() {
		c.limiter.SetLimit(rate.Every(delay))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Document{}, nil, err
	}

	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return Document{}, nil, err
	}

	links := sameHostLinks(base, u, body)
	title, text := extractPage(u, body)
	doc := Document{
		ID:   pageDocID(u),
		Text: text,
		Metadata: map[string]string{
			"source": "website",
			"url":    pageURL,
			"title":  title,
		},
	}
	c.pages.Set(pageURL, cachedPage{doc: doc, links: links}, cache.DefaultExpiration)
	return doc, links, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// allowed checks robots.txt for u. Missing or unreadable robots files allow
// everything.
func (c *Crawler) allowed(ctx context.Context, u *url.URL) (bool, time.Duration) {
	origin := u.Scheme + "://" + u.Host

	var data *robotstxt.RobotsData
	if v, ok := c.robots.Get(origin); ok {
		data = v.(*robotstxt.RobotsData)
	} else {
		data = c.fetchRobots(ctx, origin)
		c.robots.Set(origin, data, cache.DefaultExpiration)
	}
	if data == nil {
		return true, 0
	}

	group := data.FindGroup(c.userAgent)
	delay := group.CrawlDelay
	if delay > maxCrawlDelay {
		delay = maxCrawlDelay
	}
	return group.Test(u.Path), delay
}

func (c *Crawler) fetchRobots(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}

// extractPage returns the page title and main text. Trafilatura handles
// article-like pages; marketing pages it rejects fall back to body text.
func extractPage(u *url.URL, body []byte) (string, string) {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{OriginalURL: u})
	if err == nil && result != nil && strings.TrimSpace(result.ContentText) != "" {
		return result.Metadata.Title, normalizeSpace(result.ContentText)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}
	doc.Find("script, style, noscript, svg").Remove()
	title := strings.TrimSpace(doc.Find("title").First().Text())
	return title, normalizeSpace(doc.Find("body").Text())
}

func sameHostLinks(base, page *url.URL, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := page.ResolveReference(ref)
		if abs.Host != base.Host || (abs.Scheme != "http" && abs.Scheme != "https") {
			return
		}
		abs.Fragment = ""
		abs.RawQuery = ""
		if abs.Path == "" {
			abs.Path = "/"
		}
		links = append(links, abs.String())
	})
	return links
}

func pageDocID(u *url.URL) string {
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return "website_home"
	}
	return "website_" + strings.ReplaceAll(p, "/", "_")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
