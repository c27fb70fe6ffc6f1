package assets

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestGetMemoizesSuccess(t *testing.T) {
	var calls int32
	fetch := func(_ context.Context, url string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("bytes:" + url), nil
	}
	l := NewLoader(fetch, zerolog.Nop())

	for i := 0; i < 5; i++ {
		data, err := l.Get(context.Background(), "a.png")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(data) != "bytes:a.png" {
			t.Fatalf("data = %q", data)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("fetch called %d times, want 1", n)
	}

	// A different key fetches independently.
	if _, err := l.Get(context.Background(), "b.png"); err != nil {
		t.Fatalf("get b: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("fetch called %d times, want 2", n)
	}
}

func TestGetSharesInflightFetch(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context, string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("ok"), nil
	}
	l := NewLoader(fetch, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Get(context.Background(), "shared.png"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("fetch called %d times for one key, want 1", n)
	}
}

func TestFailedFetchIsRetried(t *testing.T) {
	var calls int32
	fetch := func(context.Context, string) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("cdn hiccup")
		}
		return []byte("ok"), nil
	}
	l := NewLoader(fetch, zerolog.Nop())

	if _, err := l.Get(context.Background(), "flaky.png"); err == nil {
		t.Fatal("first get should fail")
	}
	data, err := l.Get(context.Background(), "flaky.png")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("data = %q", data)
	}
}
