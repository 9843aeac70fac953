// Package follow implements log following over the mediated transport:
// periodic full re-fetches through the forge, with only the unseen
// suffix printed each round.
package follow

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// DefaultInterval is the pause between mediated re-fetches. Each fetch
// costs a full workflow round trip, so this is deliberately coarse
// compared to the direct transport's live tail.
const DefaultInterval = 30 * time.Second

// terminalGrace is the wait before the final fetch once the job turns
// terminal, giving the remote writer time to flush its last lines.
const terminalGrace = 5 * time.Second

// FetchFunc retrieves the current full log content.
type FetchFunc func(ctx context.Context) (string, error)

// StatusFunc reports the job's current status and whether it is
// terminal.
type StatusFunc func(ctx context.Context) (string, bool, error)

// Loop drives one follow session. Fetch always returns the whole log;
// the loop tracks how much it has displayed and emits only the suffix.
// Byte offsets are not reused across fetches because each fetch
// replaces the underlying cache file.
type Loop struct {
	Fetch    FetchFunc
	Status   StatusFunc
	Interval time.Duration
	Out      io.Writer

	// IntervalFunc, when set, is consulted before each sleep so a
	// config reload can change the cadence mid-session.
	IntervalFunc func() time.Duration

	// sleep is a test seam.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a follow loop with the default interval when interval is
// zero.
func New(fetch FetchFunc, status StatusFunc, interval time.Duration, out io.Writer) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		Fetch:    fetch,
		Status:   status,
		Interval: interval,
		Out:      out,
		sleep:    sleepCtx,
	}
}

// Run follows the log until the job reaches a terminal state or the
// context is cancelled. Individual fetch or status failures are logged
// and retried on the next round; only cancellation ends the loop early.
// Returns the final job status.
func (l *Loop) Run(ctx context.Context) (string, error) {
	displayed := 0
	finalStatus := ""

	for {
		content, err := l.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return finalStatus, ctx.Err()
			}
			slog.Warn("log fetch failed, will retry", "error", err)
		} else {
			displayed = l.emit(content, displayed)
		}

		status, terminal, err := l.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return finalStatus, ctx.Err()
			}
			slog.Warn("status check failed, will retry", "error", err)
		} else {
			finalStatus = status
			if terminal {
				break
			}
		}

		interval := l.Interval
		if l.IntervalFunc != nil {
			if d := l.IntervalFunc(); d > 0 {
				interval = d
			}
		}
		if err := l.sleep(ctx, interval); err != nil {
			return finalStatus, err
		}
	}

	// One last fetch after a short grace to catch trailing output.
	if err := l.sleep(ctx, terminalGrace); err != nil {
		return finalStatus, err
	}
	if content, err := l.Fetch(ctx); err == nil {
		l.emit(content, displayed)
	}
	return finalStatus, nil
}

// emit writes the portion of content past the displayed high-water
// mark and returns the new mark. A shrunken log (remote rotation or
// re-run) restarts display from the top.
func (l *Loop) emit(content string, displayed int) int {
	if len(content) < displayed {
		displayed = 0
	}
	if len(content) > displayed {
		io.WriteString(l.Out, content[displayed:])
	}
	return len(content)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
