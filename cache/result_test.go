package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResult_Pending(t *testing.T) {
	r := NewResult()

	if err := r.Err(); err != nil {
		t.Errorf("expected nil error while pending, got %v", err)
	}
	select {
	case <-r.Done():
		t.Fatal("expected result to be pending")
	default:
	}

	boom := errors.New("boom")
	go r.Complete(boom)

	if err := r.Wait(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if err := r.Err(); !errors.Is(err, boom) {
		t.Errorf("expected Err to report boom after completion, got %v", err)
	}
}

func TestResult_CompleteOnce(t *testing.T) {
	r := NewResult()
	r.Complete(nil)
	r.Complete(errors.New("late"))

	if err := r.Err(); err != nil {
		t.Errorf("expected first completion to win, got %v", err)
	}
}

func TestResult_WaitHonoursContext(t *testing.T) {
	r := NewResult()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestWaitAll(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	err := WaitAll(context.Background(),
		CompletedResult(nil),
		CompletedResult(first),
		nil,
		CompletedResult(second),
	)

	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("expected joined errors, got %v", err)
	}
	if err := WaitAll(context.Background()); err != nil {
		t.Errorf("expected nil for no results, got %v", err)
	}
}
