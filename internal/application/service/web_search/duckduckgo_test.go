package web_search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aiplusall/researchbench/internal/config"
)

// testRoundTripper rewrites outgoing requests that target DuckDuckGo hosts
// to the provided test server, preserving path and query.
type testRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

func (t *testRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Only rewrite requests to duckduckgo hosts used by the provider
	if req.URL.Host == "html.duckduckgo.com" || req.URL.Host == "api.duckduckgo.com" {
		cloned := *req
		u := *req.URL
		u.Scheme = t.base.Scheme
		u.Host = t.base.Host
		// Keep original path; our test server handlers should register for the same paths.
		cloned.URL = &u
		req = &cloned
	}
	return t.next.RoundTrip(req)
}

func newTestClient(ts *httptest.Server) *http.Client {
	baseURL, _ := url.Parse(ts.URL)
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &testRoundTripper{
			base: baseURL,
			next: http.DefaultTransport,
		},
	}
}

func TestDuckDuckGoProvider_Name(t *testing.T) {
	p, _ := NewDuckDuckGoProvider(config.WebSearchProviderConfig{})
	if p.Name() != "duckduckgo" {
		t.Fatalf("expected provider name duckduckgo, got %s", p.Name())
	}
}

func TestDuckDuckGoProvider(t *testing.T) {
	// Minimal HTML page with two results, matching selectors used in searchHTML
	html := `
<html>
  <body>
    <div class="web-result">
      <a class="result__a" href="https://duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage1&rut=">Example One</a>
      <div class="result__snippet">Snippet one</div>
    </div>
    <div class="web-result">
      <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Fpage2&rut=">Example Two</a>
      <div class="result__snippet">Snippet two</div>
    </div>
  </body>
</html>`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Provider requests GET https://html.duckduckgo.com/html/?q=...
		if r.URL.Path == "/html/" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(html))
			return
		}
		t.Fatalf("unexpected request path: %s", r.URL.Path)
	}))
	defer ts.Close()

	// Build provider and inject our test client
	prov, _ := NewDuckDuckGoProvider(config.WebSearchProviderConfig{})
	dp := prov.(*DuckDuckGoProvider)
	if dp == nil {
		t.Fatalf("failed to build provider")
	}
	dp.client = newTestClient(ts)

	ctx := context.Background()
	results, err := dp.Search(ctx, "sputnik", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Example One" || !strings.HasPrefix(results[0].URL, "https://example.com/") ||
		results[0].Text != "Snippet one" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Title != "Example Two" || !strings.HasPrefix(results[1].URL, "https://example.org/") ||
		results[1].Text != "Snippet two" {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
	if results[0].Query != "sputnik" || results[0].Position != 1 || results[1].Position != 2 {
		t.Fatalf("snippet metadata not filled: %+v", results)
	}
}

func TestDuckDuckGoProvider_Fallback(t *testing.T) {
	// Simulate HTML returning non-OK to force API fallback, then a minimal API JSON
	apiJSON := `{
		"AbstractText": "Abstract snippet",
		"AbstractURL": "https://example.com/abstract",
		"Heading": "Abstract Heading",
		"RelatedTopics": [],
		"Results": [{"FirstURL": "https://example.net/one", "Text": "Result one"}]
	}`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/html/":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(apiJSON))
		default:
			t.Fatalf("unexpected request path: %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	prov, _ := NewDuckDuckGoProvider(config.WebSearchProviderConfig{})
	dp := prov.(*DuckDuckGoProvider)
	dp.client = newTestClient(ts)

	results, err := dp.Search(context.Background(), "sputnik", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Abstract Heading" || results[0].Text != "Abstract snippet" {
		t.Fatalf("unexpected abstract result: %+v", results[0])
	}
}
