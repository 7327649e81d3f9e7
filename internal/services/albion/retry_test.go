package albion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		Base:            time.Millisecond,
		RetryableStatus: IsRetryableStatus,
	}
}

func sequenceServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		status := statuses[len(statuses)-1]
		if int(n) <= len(statuses) {
			status = statuses[n-1]
		}
		w.WriteHeader(status)
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func getter(client *resty.Client, url string) func(ctx context.Context) (*resty.Response, error) {
	return func(ctx context.Context) (*resty.Response, error) {
		return client.R().SetContext(ctx).Get(url)
	}
}

func TestRetryRecoversFromRetryableStatus(t *testing.T) {
	srv, calls := sequenceServer(t, 503, 429, 200)

	resp, err := testPolicy(4).Do(context.Background(), getter(resty.New(), srv.URL))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.StatusCode() != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode())
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestRetryDoesNotRetryPermanentStatus(t *testing.T) {
	srv, calls := sequenceServer(t, 404)

	resp, err := testPolicy(4).Do(context.Background(), getter(resty.New(), srv.URL))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.StatusCode() != 404 {
		t.Errorf("expected 404 to be handed back, got %d", resp.StatusCode())
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestRetryFinalUnretriedAttempt(t *testing.T) {
	srv, calls := sequenceServer(t, 503)

	resp, err := testPolicy(3).Do(context.Background(), getter(resty.New(), srv.URL))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.StatusCode() != 503 {
		t.Errorf("expected final 503, got %d", resp.StatusCode())
	}
	// 3 retried attempts plus the final one
	if got := atomic.LoadInt32(calls); got != 4 {
		t.Errorf("expected 4 calls, got %d", got)
	}
}

func TestRetryReturnsLastTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var attempts int32
	send := func(ctx context.Context) (*resty.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return resty.New().R().SetContext(ctx).Get(url)
	}

	_, err := testPolicy(3).Do(context.Background(), send)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts and no final one, got %d", got)
	}
}

func TestRetryCancellationPropagates(t *testing.T) {
	srv, calls := sequenceServer(t, 503)

	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, Base: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, err := policy.Do(ctx, getter(resty.New(), srv.URL))
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not interrupt the backoff")
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("expected 1 call before cancel, got %d", got)
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	p := RetryPolicy{Base: 300 * time.Millisecond, JitterCeiling: 100 * time.Millisecond}
	for k, want := range []time.Duration{300, 600, 1200, 2400} {
		d := p.Backoff(k)
		lo := want * time.Millisecond
		if d < lo || d >= lo+100*time.Millisecond {
			t.Errorf("attempt %d: backoff %v outside [%v, %v)", k, d, lo, lo+100*time.Millisecond)
		}
	}
}
