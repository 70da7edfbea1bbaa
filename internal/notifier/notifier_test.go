package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type scriptedAdapter struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (a *scriptedAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *scriptedAdapter) Stop(context.Context) error                     { return nil }

func (a *scriptedAdapter) SendText(_ context.Context, _ kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if len(a.errs) == 0 {
		return kit.MessageRef{}, nil
	}
	err := a.errs[0]
	a.errs = a.errs[1:]
	return kit.MessageRef{}, err
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func fastConfig(retries int) Config {
	return Config{
		RatePerSec:    1000,
		RetryMax:      retries,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		SendTimeout:   time.Second,
	}
}

func TestDeliverRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	ad := &scriptedAdapter{errs: []error{errors.New("flood wait"), errors.New("flood wait")}}
	s := New(fastConfig(2), ad, logx.Nop(), nil)

	if err := s.Deliver(context.Background(), kit.ChatTarget{ChatID: 1}, "hi", nil); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := ad.callCount(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestDeliverReturnsLastErrorWhenExhausted(t *testing.T) {
	t.Parallel()

	boom := errors.New("blocked by user")
	ad := &scriptedAdapter{errs: []error{errors.New("first"), boom}}
	s := New(fastConfig(1), ad, logx.Nop(), nil)

	err := s.Deliver(context.Background(), kit.ChatTarget{ChatID: 1}, "hi", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Deliver = %v, want %v", err, boom)
	}
	if got := ad.callCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestDeliverHonorsContextBetweenRetries(t *testing.T) {
	t.Parallel()

	ad := &scriptedAdapter{errs: []error{errors.New("x"), errors.New("x"), errors.New("x")}}
	cfg := fastConfig(3)
	cfg.RetryBase = time.Minute
	cfg.RetryMaxDelay = time.Minute
	s := New(cfg, ad, logx.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Deliver(ctx, kit.ChatTarget{ChatID: 1}, "hi", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Deliver = %v, want deadline exceeded", err)
	}
	if got := ad.callCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestRetryDelayBackoff(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tc := range cases {
		if got := retryDelay(cfg, tc.attempt); got != tc.want {
			t.Fatalf("retryDelay(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
