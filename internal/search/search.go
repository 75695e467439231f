// Package search queries academic literature APIs and returns merged,
// deduplicated results. Each provider implements Backend; the Service fans a
// query out to all of them and tolerates individual provider failures.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/scholarai/gapfinder/internal/cache"
	"github.com/scholarai/gapfinder/internal/ratelimit"
	"github.com/scholarai/gapfinder/internal/retry"
)

var (
	// ErrNoBackends indicates the service was built with no providers.
	ErrNoBackends = errors.New("no search backends configured")
	// ErrAllBackendsFailed indicates every provider returned an error.
	ErrAllBackendsFailed = errors.New("all search backends failed")
)

// Result is one literature search hit in provider-neutral form.
type Result struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Abstract    string    `json:"abstract,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at,omitzero"`
}

// Backend searches a single academic API.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// ResultCache stores merged search results between analyses. Satisfied by
// cache.Cache; kept narrow so tests can use a map.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const resultCacheTTL = 15 * time.Minute

// Service fans queries out to all backends with per-backend rate limiting
// and retries.
type Service struct {
	backends []Backend
	limiter  *ratelimit.Registry
	policy   retry.Policy
	cache    ResultCache
	logger   *slog.Logger
}

func NewService(backends []Backend, limiter *ratelimit.Registry, logger *slog.Logger) *Service {
	return &Service{
		backends: backends,
		limiter:  limiter,
		policy:   retry.DefaultPolicy,
		logger:   logger,
	}
}

// WithCache enables caching of merged results. Different analyses of related
// papers tend to produce overlapping queries.
func (s *Service) WithCache(c ResultCache) *Service {
	s.cache = c
	return s
}

// Search queries every backend concurrently and merges whatever succeeded.
// A failing backend is logged and skipped; the call fails only when no
// backend returns results and at least one errored, or none are configured.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if len(s.backends) == 0 {
		return nil, ErrNoBackends
	}

	cacheKey := cache.SearchResultKey(queryHash(query, limit))
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
			var cached []Result
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	type backendResult struct {
		name    string
		results []Result
		err     error
	}

	ch := make(chan backendResult, len(s.backends))
	var wg sync.WaitGroup

	for _, b := range s.backends {
		wg.Add(1)
		go func(b Backend) {
			defer wg.Done()
			results, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]Result, error) {
				if err := s.limiter.Wait(ctx, b.Name()); err != nil {
					return nil, err
				}
				return b.Search(ctx, query, limit)
			})
			ch <- backendResult{name: b.Name(), results: results, err: err}
		}(b)
	}

	wg.Wait()
	close(ch)

	var all []Result
	var failures []string
	for br := range ch {
		if br.err != nil {
			s.logger.Warn("search backend failed", "backend", br.name, "error", br.err)
			failures = append(failures, fmt.Sprintf("%s: %v", br.name, br.err))
			continue
		}
		all = append(all, br.results...)
	}

	if len(all) == 0 && len(failures) == len(s.backends) {
		return nil, fmt.Errorf("%w: %s", ErrAllBackendsFailed, strings.Join(failures, "; "))
	}

	merged := deduplicate(all)
	if s.cache != nil && len(merged) > 0 {
		if data, err := json.Marshal(merged); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, resultCacheTTL)
		}
	}
	return merged, nil
}

// queryHash keys the result cache on the normalized query and limit.
func queryHash(query string, limit int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", strings.ToLower(strings.TrimSpace(query)), limit)))
	return hex.EncodeToString(sum[:8])
}

// SearchWithFallback runs Search, progressively shortening the query when it
// yields nothing: first the leading two words, then the leading word. Broad
// AI-generated queries sometimes over-constrain niche topics.
func (s *Service) SearchWithFallback(ctx context.Context, query string, limit int) ([]Result, error) {
	results, err := s.Search(ctx, query, limit)
	if err != nil || len(results) > 0 {
		return results, err
	}

	words := strings.Fields(query)
	for _, n := range []int{2, 1} {
		if len(words) <= n {
			continue
		}
		shortened := strings.Join(words[:n], " ")
		s.logger.Debug("retrying search with shortened query", "query", shortened)
		results, err = s.Search(ctx, shortened, limit)
		if err != nil || len(results) > 0 {
			return results, err
		}
	}
	return nil, nil
}

// deduplicate drops results whose titles are near-duplicates of an earlier
// result, keeping first occurrence. Providers frequently index the same
// paper under slightly different titles.
func deduplicate(results []Result) []Result {
	const threshold = 0.8

	var kept []Result
	var keptTokens []map[string]struct{}

	for _, r := range results {
		tokens := titleTokens(r.Title)
		dup := false
		for _, prev := range keptTokens {
			if jaccard(tokens, prev) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, r)
			keptTokens = append(keptTokens, tokens)
		}
	}
	return kept
}

// titleTokens lowercases a title and splits it into its word set, dropping
// punctuation.
func titleTokens(title string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[f] = struct{}{}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
