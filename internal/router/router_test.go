package router

import (
	"context"
	"errors"
	"testing"

	"github.com/Sarfflow/bridgectl/internal/tunnel"
)

func newTestRouter(directUp bool) *Router {
	r := New(&tunnel.Transport{}, "test", false)
	r.probeFunc = func(ctx context.Context) bool { return directUp }
	return r
}

func TestRunPrefersDirectWhenReachable(t *testing.T) {
	r := newTestRouter(true)

	var directCalls, mediatedCalls int
	mode, err := r.Run(context.Background(),
		func(ctx context.Context) error { directCalls++; return nil },
		func(ctx context.Context) error { mediatedCalls++; return nil },
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if mode != ModeDirect {
		t.Errorf("mode = %v, want direct", mode)
	}
	if directCalls != 1 || mediatedCalls != 0 {
		t.Errorf("calls = %d direct / %d mediated", directCalls, mediatedCalls)
	}
}

func TestRunRoutesMediatedWhenProbeFails(t *testing.T) {
	r := newTestRouter(false)

	var mediatedCalls int
	mode, err := r.Run(context.Background(),
		func(ctx context.Context) error { t.Fatal("direct must not run"); return nil },
		func(ctx context.Context) error { mediatedCalls++; return nil },
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if mode != ModeMediated || mediatedCalls != 1 {
		t.Errorf("mode = %v, mediated calls = %d", mode, mediatedCalls)
	}
}

func TestRunFallsBackExactlyOnceOnTransportError(t *testing.T) {
	r := newTestRouter(true)

	var directCalls, mediatedCalls int
	mode, err := r.Run(context.Background(),
		func(ctx context.Context) error {
			directCalls++
			return &tunnel.NotAvailableError{Message: "tunnel died"}
		},
		func(ctx context.Context) error { mediatedCalls++; return nil },
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if mode != ModeMediated {
		t.Errorf("mode = %v, want mediated after fallback", mode)
	}
	if directCalls != 1 || mediatedCalls != 1 {
		t.Errorf("calls = %d direct / %d mediated, want 1 / 1", directCalls, mediatedCalls)
	}

	// The failed probe result sticks: subsequent calls go straight to
	// the mediated path.
	mode, _ = r.Run(context.Background(),
		func(ctx context.Context) error { directCalls++; return nil },
		func(ctx context.Context) error { mediatedCalls++; return nil },
	)
	if mode != ModeMediated || directCalls != 1 {
		t.Errorf("after fallback: mode = %v, direct calls = %d", mode, directCalls)
	}
}

func TestRunDoesNotFallBackOnApplicationError(t *testing.T) {
	r := newTestRouter(true)

	appErr := errors.New("remote command exited with code 2")
	var mediatedCalls int
	mode, err := r.Run(context.Background(),
		func(ctx context.Context) error { return appErr },
		func(ctx context.Context) error { mediatedCalls++; return nil },
	)
	if !errors.Is(err, appErr) {
		t.Fatalf("Run() error = %v, want the application error", err)
	}
	if mode != ModeDirect || mediatedCalls != 0 {
		t.Errorf("mode = %v, mediated calls = %d; application errors must not re-run", mode, mediatedCalls)
	}
}

func TestDisableDirectSkipsProbe(t *testing.T) {
	r := New(&tunnel.Transport{}, "test", true)
	r.probeFunc = func(ctx context.Context) bool {
		t.Fatal("probe must not run when direct is disabled")
		return true
	}

	if r.Route(context.Background()) != ModeMediated {
		t.Error("Route() with disabled direct should be mediated")
	}
}

func TestNilTransportRoutesMediated(t *testing.T) {
	r := &Router{}
	if r.Route(context.Background()) != ModeMediated {
		t.Error("nil transport should route mediated")
	}
}

func TestRunMediatedForcesMediated(t *testing.T) {
	r := newTestRouter(true)
	var mediatedCalls int
	mode, err := r.RunMediated(context.Background(), func(ctx context.Context) error {
		mediatedCalls++
		return nil
	})
	if err != nil || mode != ModeMediated || mediatedCalls != 1 {
		t.Errorf("RunMediated: mode = %v, calls = %d, err = %v", mode, mediatedCalls, err)
	}
}

func TestProbeIsCached(t *testing.T) {
	probes := 0
	r := New(&tunnel.Transport{}, "test", false)
	r.probeFunc = func(ctx context.Context) bool { probes++; return true }

	r.Route(context.Background())
	r.Route(context.Background())
	r.DirectAvailable(context.Background())
	if probes != 1 {
		t.Errorf("probes = %d, want 1 (cached per process)", probes)
	}
}
