package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scholarai/gapfinder/internal/retry"
)

// crossrefAPIBase is the Crossref works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossrefAPIBase = "https://api.crossref.org/works"

const searchUserAgent = "gapfinder/1.0 (mailto:ops@scholarai.io)"

// CrossrefBackend queries the Crossref works API.
type CrossrefBackend struct {
	Client *http.Client
}

func (b *CrossrefBackend) Name() string { return "crossref" }

func (b *CrossrefBackend) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty Crossref query")
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{
		"query": {query},
		"rows":  {strconv.Itoa(limit)},
		"select": {"title,abstract,URL,DOI,published"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crossrefAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("Crossref API request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("Crossref", resp.StatusCode)
	}

	var cr crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("parsing Crossref response: %w", err)
	}

	var results []Result
	for _, item := range cr.Message.Items {
		if len(item.Title) == 0 || item.Title[0] == "" {
			continue
		}
		r := Result{
			Title:    item.Title[0],
			URL:      item.URL,
			Abstract: stripJATSMarkup(item.Abstract),
			Source:   "crossref",
		}
		if r.URL == "" && item.DOI != "" {
			r.URL = "https://doi.org/" + item.DOI
		}
		if len(item.Published.DateParts) > 0 && len(item.Published.DateParts[0]) > 0 {
			parts := item.Published.DateParts[0]
			y, m, d := parts[0], 1, 1
			if len(parts) > 1 {
				m = parts[1]
			}
			if len(parts) > 2 {
				d = parts[2]
			}
			r.PublishedAt = time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		}
		results = append(results, r)
	}
	return results, nil
}

// classifyStatus maps non-200 provider responses to errors, marking
// retryable statuses transient.
func classifyStatus(provider string, status int) error {
	err := fmt.Errorf("%s API returned HTTP %d", provider, status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return retry.MarkTransient(err)
	}
	return err
}

// stripJATSMarkup removes the JATS XML tags Crossref embeds in abstracts.
func stripJATSMarkup(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Crossref JSON structures.
type crossrefResponse struct {
	Message struct {
		Items []crossrefItem `json:"items"`
	} `json:"message"`
}

type crossrefItem struct {
	Title     []string `json:"title"`
	Abstract  string   `json:"abstract"`
	URL       string   `json:"URL"`
	DOI       string   `json:"DOI"`
	Published struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published"`
}

// Compile-time check that CrossrefBackend implements Backend.
var _ Backend = (*CrossrefBackend)(nil)
