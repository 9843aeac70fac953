package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Sarfflow/bridgectl/internal/config"
	"github.com/Sarfflow/bridgectl/internal/forge"
	"github.com/Sarfflow/bridgectl/internal/logsync"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth error", &forge.AuthError{Message: "bad token"}, exitConfig},
		{"config error", &config.ConfigError{Message: "no repo"}, exitConfig},
		{"wrapped config error", fmt.Errorf("loading: %w", &config.ConfigError{Message: "no repo"}), exitConfig},
		{"timeout", &forge.TimeoutError{Message: "deadline"}, exitTimeout},
		{"log not found", fmt.Errorf("job abc: %w", logsync.ErrLogNotFound), exitLogNotFound},
		{"generic error", errors.New("ssh connection failed"), exitGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
