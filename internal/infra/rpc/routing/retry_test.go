package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/buywatch/internal/infra/rpc/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{errors.New("429 Too Many Requests"), ActionFailover},
		{errors.New("project rate limit exceeded"), ActionFailover},
		{errors.New("quota exceeded"), ActionFailover},
		{errors.New("daily request count exceeded"), ActionFailover},
		{errors.New("403 Forbidden"), ActionFailover},
		{&provider.HTTPStatusError{StatusCode: 429}, ActionFailover},
		{fmt.Errorf("wrapped: %w", &provider.RPCError{Code: -32601, Message: "nope"}), ActionFatal},
		{&provider.RPCError{Code: -32000, Message: "header not found"}, ActionRetry},
		{errors.New("Invalid JSON-RPC request -32600"), ActionFatal},
		{errors.New("Parse error -32700"), ActionFatal},
		{&provider.RPCError{Code: 3, Message: "execution reverted"}, ActionFatal},
		{&provider.RPCError{Code: -32000, Message: "execution reverted"}, ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
		{&provider.HTTPStatusError{StatusCode: 502, Body: "bad gateway"}, ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for attempt, w := range want {
		if got := CalculateBackoff(attempt, cfg); got != w {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}

type scriptedProvider struct {
	name  string
	errs  []error
	calls int
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return json.RawMessage(`"ok"`), nil
}

func (s *scriptedProvider) Health() provider.HealthStatus { return provider.HealthStatus{Available: true} }
func (s *scriptedProvider) IsAvailable() bool             { return true }
func (s *scriptedProvider) Close() error                  { return nil }

func TestCallWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 2}

	t.Run("transient then success", func(t *testing.T) {
		p := &scriptedProvider{errs: []error{errors.New("connection reset"), nil}}
		if _, err := CallWithRetry(context.Background(), p, "m", nil, cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.calls != 2 {
			t.Errorf("expected 2 calls, got %d", p.calls)
		}
	})

	t.Run("failover stops immediately", func(t *testing.T) {
		p := &scriptedProvider{errs: []error{&provider.HTTPStatusError{StatusCode: 429}}}
		if _, err := CallWithRetry(context.Background(), p, "m", nil, cfg); err == nil {
			t.Fatal("expected error")
		}
		if p.calls != 1 {
			t.Errorf("expected 1 call, got %d", p.calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		e := errors.New("timeout")
		p := &scriptedProvider{errs: []error{e, e, e, e}}
		_, err := CallWithRetry(context.Background(), p, "m", nil, cfg)
		if !errors.Is(err, e) {
			t.Fatalf("expected wrapped timeout, got %v", err)
		}
		if p.calls != 3 {
			t.Errorf("expected 3 calls, got %d", p.calls)
		}
	})
}

func TestRouterCircuitBreaker(t *testing.T) {
	a := &scriptedProvider{name: "a"}
	b := &scriptedProvider{name: "b"}
	r := NewRouter(a, b)
	r.SetCircuitBreaker(2, time.Minute)

	now := time.Now()
	r.now = func() time.Time { return now }

	if c := r.Candidates(); c[0].Name() != "a" {
		t.Fatalf("expected a first, got %s", c[0].Name())
	}

	r.RecordFailure("a")
	r.RecordFailure("a")

	if c := r.Candidates(); c[0].Name() != "b" || c[1].Name() != "a" {
		t.Fatalf("expected a parked behind b, got %s,%s", c[0].Name(), c[1].Name())
	}

	now = now.Add(2 * time.Minute)
	if c := r.Candidates(); c[0].Name() != "a" {
		t.Fatalf("expected a back after cooldown, got %s", c[0].Name())
	}

	// One more failure while half-open reopens the circuit.
	r.RecordFailure("a")
	if c := r.Candidates(); c[0].Name() != "b" {
		t.Fatalf("expected a re-parked, got %s", c[0].Name())
	}
}
