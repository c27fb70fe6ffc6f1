// Package assets provides a memoized asset loader used to warm question
// image and renderer resources before a candidate needs them.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FetchFunc retrieves the bytes behind a single asset URL.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

type entry struct {
	once sync.Once
	data []byte
	err  error
}

// Loader fetches each URL at most once concurrently and memoizes successful
// results. A failed fetch is forgotten so a later Get can retry it.
type Loader struct {
	fetch FetchFunc
	log   zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewLoader creates a Loader. fetch may be nil, in which case a plain HTTP
// GET with a 10 second timeout is used.
func NewLoader(fetch FetchFunc, log zerolog.Logger) *Loader {
	if fetch == nil {
		fetch = httpFetch(&http.Client{Timeout: 10 * time.Second})
	}
	return &Loader{
		fetch:   fetch,
		log:     log.With().Str("component", "assets").Logger(),
		entries: map[string]*entry{},
	}
}

// Get returns the asset bytes for url, fetching them on first use. Concurrent
// callers for the same url share one in-flight fetch.
func (l *Loader) Get(ctx context.Context, url string) ([]byte, error) {
	l.mu.Lock()
	e, ok := l.entries[url]
	if !ok {
		e = &entry{}
		l.entries[url] = e
	}
	l.mu.Unlock()

	e.once.Do(func() {
		e.data, e.err = l.fetch(ctx, url)
		if e.err != nil {
			// Drop the failed entry so the next Get starts a fresh fetch.
			l.mu.Lock()
			delete(l.entries, url)
			l.mu.Unlock()
		}
	})
	return e.data, e.err
}

// Warm prefetches urls in the background. Failures are logged and otherwise
// ignored; the candidate-facing path never waits on warming.
func (l *Loader) Warm(urls []string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		go func(url string) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if _, err := l.Get(ctx, url); err != nil {
				l.log.Debug().Err(err).Str("url", url).Msg("Asset warm failed")
			}
		}(u)
	}
}

func httpFetch(client *http.Client) FetchFunc {
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("asset fetch %s: status %d", url, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}
