package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func newTestSite(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	hits := &sync.Map{}
	page := func(title, body, links string) string {
		return fmt.Sprintf(`<!DOCTYPE html><html><head><title>%s</title><script>var x = 1;</script></head>
<body><nav>%s</nav><main><h1>%s</h1><p>%s</p></main></body></html>`, title, links, title, body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	serve := func(path, html string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			hits.Store(path, true)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(html))
		})
	}
	serve("/", page("Home", "We help companies adopt AI automation for inventory tracking.",
		`<a href="/about">About</a> <a href="/blog#top">Blog</a> <a href="/private">Secret</a> <a href="https://elsewhere.example/x">Out</a>`))
	serve("/about", page("About", "Our consulting team has deployed chatbots for retail brands.", ""))
	serve("/services", page("Services", "Services include chatbot development and data analytics.", ""))
	serve("/blog", page("Blog", "Notes on machine learning for logistics.", ""))
	serve("/private", page("Private", "internal only", ""))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hits
}

func TestCrawlFollowsSameHostLinksAndRobots(t *testing.T) {
	t.Parallel()

	srv, hits := newTestSite(t)
	c := NewCrawler(CrawlerConfig{MaxPages: 10, Rate: 1000, Client: srv.Client()}, nil)

	docs, err := c.Crawl(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	ids := make(map[string]Document)
	for _, d := range docs {
		ids[d.ID] = d
	}
	for _, want := range []string{"website_home", "website_about", "website_services", "website_blog"} {
		if _, ok := ids[want]; !ok {
			t.Errorf("missing document %s (got %v)", want, keys(ids))
		}
	}
	if _, ok := hits.Load("/private"); ok {
		t.Fatal("crawler fetched a robots-disallowed page")
	}
	home := ids["website_home"]
	if !strings.Contains(home.Text, "inventory tracking") {
		t.Fatalf("home text missing content: %q", home.Text)
	}
	if strings.Contains(home.Text, "var x") {
		t.Fatalf("script leaked into text: %q", home.Text)
	}
	if home.Metadata["source"] != "website" || home.Metadata["url"] == "" {
		t.Fatalf("unexpected metadata: %+v", home.Metadata)
	}
}

func TestCrawlRespectsPageBudget(t *testing.T) {
	t.Parallel()

	srv, _ := newTestSite(t)
	c := NewCrawler(CrawlerConfig{MaxPages: 2, Rate: 1000, Client: srv.Client()}, nil)

	docs, err := c.Crawl(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(docs) > 2 {
		t.Fatalf("expected at most 2 documents, got %d", len(docs))
	}
}

func TestCrawlInvalidURL(t *testing.T) {
	t.Parallel()

	c := NewCrawler(CrawlerConfig{}, nil)
	if _, err := c.Crawl(context.Background(), "ftp://example.com"); err == nil {
		t.Fatal("expected error for non-http url")
	}
}

func keys(m map[string]Document) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
