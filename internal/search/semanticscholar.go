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

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,url,externalIds,year,publicationDate"

// SemanticScholarBackend queries the Semantic Scholar Graph API.
type SemanticScholarBackend struct {
	Client *http.Client
	APIKey string
}

func (b *SemanticScholarBackend) Name() string { return "semanticscholar" }

func (b *SemanticScholarBackend) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(limit)},
		"fields": {semanticFields},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)
	if b.APIKey != "" {
		req.Header.Set("x-api-key", b.APIKey)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("Semantic Scholar API request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("Semantic Scholar", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	var results []Result
	for _, paper := range sr.Data {
		if paper.Title == "" {
			continue
		}
		r := Result{
			Title:    paper.Title,
			URL:      paper.URL,
			Abstract: paper.Abstract,
			Source:   "semanticscholar",
		}
		if r.URL == "" && paper.ExternalIDs.DOI != "" {
			r.URL = "https://doi.org/" + paper.ExternalIDs.DOI
		}
		if paper.PublicationDate != "" {
			if t, parseErr := time.Parse("2006-01-02", paper.PublicationDate); parseErr == nil {
				r.PublishedAt = t
			}
		} else if paper.Year > 0 {
			r.PublishedAt = time.Date(paper.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		results = append(results, r)
	}
	return results, nil
}

// Semantic Scholar JSON structures.
type semanticResponse struct {
	Data []semanticPaper `json:"data"`
}

type semanticPaper struct {
	Title           string `json:"title"`
	Abstract        string `json:"abstract"`
	URL             string `json:"url"`
	Year            int    `json:"year"`
	PublicationDate string `json:"publicationDate"`
	ExternalIDs     struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
}

// Compile-time check that SemanticScholarBackend implements Backend.
var _ Backend = (*SemanticScholarBackend)(nil)
