// Package router chooses between the two transports to a Bridge host:
// direct (SSH over the WebSocket tunnel) and mediated (forge workflow
// dispatch plus artifact retrieval).
package router

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Sarfflow/bridgectl/internal/tunnel"
)

// Mode names the transport selected for an operation.
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModeMediated Mode = "mediated"
)

// Router decides per call which transport carries an operation. The
// direct path is preferred when configured and reachable; the mediated
// path is both the fallback and the only route for operations that
// need artifact transfer, which SSH cannot provide.
type Router struct {
	Direct        *tunnel.Transport
	BridgeName    string
	DisableDirect bool

	// probe result, cached per process. The probe costs a full SSH
	// handshake, so repeating it for every operation in one invocation
	// would dominate runtime.
	probed    bool
	available bool

	// probeFunc is a test seam over Transport.TestConnectivity.
	probeFunc func(ctx context.Context) bool
}

// New builds a router over a direct transport. transport may be nil
// when no bridge is configured; every operation then routes mediated.
func New(transport *tunnel.Transport, bridgeName string, disableDirect bool) *Router {
	r := &Router{Direct: transport, BridgeName: bridgeName, DisableDirect: disableDirect}
	r.probeFunc = func(ctx context.Context) bool {
		return transport.TestConnectivity(ctx, bridgeName)
	}
	return r
}

// DirectAvailable reports whether the direct transport can be used,
// probing connectivity on first call.
func (r *Router) DirectAvailable(ctx context.Context) bool {
	if r.Direct == nil || r.DisableDirect {
		return false
	}
	if !r.probed {
		r.available = r.probeFunc(ctx)
		r.probed = true
		if !r.available {
			slog.Debug("direct transport unreachable, routing mediated", "bridge", r.BridgeName)
		}
	}
	return r.available
}

// Route returns the mode an ordinary operation would use right now.
func (r *Router) Route(ctx context.Context) Mode {
	if r.DirectAvailable(ctx) {
		return ModeDirect
	}
	return ModeMediated
}

// Run executes an operation on the preferred transport. When the
// direct attempt fails with a transport-level error, the mediated
// path is tried exactly once in the same call; application-level
// failures (the remote command ran and failed) are returned as-is,
// since re-running them elsewhere would duplicate side effects.
func (r *Router) Run(ctx context.Context, direct, mediated func(context.Context) error) (Mode, error) {
	if !r.DirectAvailable(ctx) {
		return ModeMediated, mediated(ctx)
	}

	err := direct(ctx)
	if err == nil {
		return ModeDirect, nil
	}

	var unavailable *tunnel.NotAvailableError
	if errors.As(err, &unavailable) {
		slog.Warn("direct transport failed mid-operation, falling back", "error", unavailable.Message)
		r.available = false
		return ModeMediated, mediated(ctx)
	}
	return ModeDirect, err
}

// RunMediated forces the mediated path, for operations that move
// artifacts.
func (r *Router) RunMediated(ctx context.Context, mediated func(context.Context) error) (Mode, error) {
	return ModeMediated, mediated(ctx)
}
