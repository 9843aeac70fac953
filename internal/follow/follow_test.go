package follow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// scripted builds a loop whose fetches and statuses are driven by
// slices, with sleeping disabled.
func scripted(t *testing.T, contents []string, statuses []string, out *strings.Builder) *Loop {
	t.Helper()
	var fetchCalls, statusCalls int

	fetch := func(ctx context.Context) (string, error) {
		i := fetchCalls
		fetchCalls++
		if i >= len(contents) {
			i = len(contents) - 1
		}
		return contents[i], nil
	}
	status := func(ctx context.Context) (string, bool, error) {
		i := statusCalls
		statusCalls++
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		s := statuses[i]
		terminal := s == "SUCCEEDED" || s == "FAILED"
		return s, terminal, nil
	}

	l := New(fetch, status, time.Second, out)
	l.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return l
}

func TestRunEmitsOnlyNewContent(t *testing.T) {
	var out strings.Builder
	l := scripted(t,
		[]string{"a\n", "a\nb\n", "a\nb\nc\n"},
		[]string{"RUNNING", "RUNNING", "SUCCEEDED"},
		&out,
	)

	status, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != "SUCCEEDED" {
		t.Errorf("final status = %q, want SUCCEEDED", status)
	}
	// Content must appear exactly once despite full re-fetches.
	if got := out.String(); got != "a\nb\nc\n" {
		t.Errorf("output = %q, want %q", got, "a\nb\nc\n")
	}
}

func TestRunRestartsDisplayOnShrunkenLog(t *testing.T) {
	var out strings.Builder
	l := scripted(t,
		[]string{"long old content\n", "new\n", "new\n"},
		[]string{"RUNNING", "SUCCEEDED", "SUCCEEDED"},
		&out,
	)

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := out.String(); !strings.Contains(got, "new\n") {
		t.Errorf("output = %q, should restart from the top after shrink", got)
	}
}

func TestRunToleratesFetchErrors(t *testing.T) {
	var out strings.Builder
	fetchCalls := 0
	fetch := func(ctx context.Context) (string, error) {
		fetchCalls++
		if fetchCalls == 1 {
			return "", errors.New("transient")
		}
		return "content\n", nil
	}
	statusCalls := 0
	status := func(ctx context.Context) (string, bool, error) {
		statusCalls++
		return "SUCCEEDED", statusCalls >= 2, nil
	}

	l := New(fetch, status, time.Second, &out)
	l.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, single fetch failures must not be fatal", err)
	}
	if got := out.String(); !strings.Contains(got, "content\n") {
		t.Errorf("output = %q", got)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var out strings.Builder
	fetch := func(ctx context.Context) (string, error) { return "x\n", nil }
	status := func(ctx context.Context) (string, bool, error) { return "RUNNING", false, nil }

	l := New(fetch, status, time.Second, &out)
	calls := 0
	l.sleep = func(ctx context.Context, d time.Duration) error {
		calls++
		if calls >= 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	if _, err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRunDoesFinalFetchAfterTerminal(t *testing.T) {
	var out strings.Builder
	fetches := 0
	fetch := func(ctx context.Context) (string, error) {
		fetches++
		if fetches == 1 {
			return "partial\n", nil
		}
		return "partial\ntrailing\n", nil
	}
	status := func(ctx context.Context) (string, bool, error) { return "SUCCEEDED", true, nil }

	l := New(fetch, status, time.Second, &out)
	l.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := out.String(); got != "partial\ntrailing\n" {
		t.Errorf("output = %q, final fetch must capture trailing lines", got)
	}
}

func TestNewAppliesDefaultInterval(t *testing.T) {
	l := New(nil, nil, 0, &strings.Builder{})
	if l.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", l.Interval, DefaultInterval)
	}
}

func TestIntervalFuncOverridesInterval(t *testing.T) {
	var used []time.Duration
	var out strings.Builder
	statusCalls := 0

	l := New(
		func(ctx context.Context) (string, error) { return "", nil },
		func(ctx context.Context) (string, bool, error) {
			statusCalls++
			return "SUCCEEDED", statusCalls >= 3, nil
		},
		10*time.Second, &out,
	)
	l.IntervalFunc = func() time.Duration { return 2 * time.Second }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		used = append(used, d)
		return nil
	}

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The loop sleeps twice before the terminal round, plus the grace.
	if len(used) < 2 || used[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want IntervalFunc value used", used)
	}
}
