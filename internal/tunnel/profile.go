// Package tunnel provides the direct transport to a Bridge host: an
// SSH session carried over a WebSocket reverse proxy by a small helper
// binary, so no persistent daemon is needed on the client.
package tunnel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultSSHUser is used when a profile omits the user.
	DefaultSSHUser = "root"

	// DefaultSSHPort is the sshd port the helper bridges to.
	DefaultSSHPort = 22222
)

// NotAvailableError is raised when the direct transport is unusable.
// Always recoverable by falling back to the mediated transport.
type NotAvailableError struct {
	Message string
}

func (e *NotAvailableError) Error() string { return e.Message }

// BridgeNotFoundError is raised when a named profile does not exist.
type BridgeNotFoundError struct {
	Name string
}

func (e *BridgeNotFoundError) Error() string {
	return fmt.Sprintf("bridge '%s' not found", e.Name)
}

// Profile identifies one remote endpoint reachable via the
// WebSocket-to-stdio helper.
type Profile struct {
	Name     string `json:"name"`
	ProxyURL string `json:"proxy_url"`
	SSHUser  string `json:"ssh_user"`
	SSHPort  int    `json:"ssh_port"`
}

func (p *Profile) withDefaults() *Profile {
	out := *p
	if out.SSHUser == "" {
		out.SSHUser = DefaultSSHUser
	}
	if out.SSHPort == 0 {
		out.SSHPort = DefaultSSHPort
	}
	return &out
}

// Store is the ordered collection of bridge profiles plus the default
// profile pointer. Loaded at process start, mutated in memory, written
// back atomically on change.
type Store struct {
	Default  string     `json:"default,omitempty"`
	Profiles []*Profile `json:"bridges"`

	path string
}

// LoadStore reads the profile store from path. A missing or corrupt
// file yields an empty store; profiles are never silently dropped on
// save because Save always rewrites the full document.
func LoadStore(path string) *Store {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, s); err != nil {
		return &Store{path: path}
	}
	s.path = path
	return s
}

// Save writes the store back as an atomic replace: full marshal to a
// temp file in the same directory, then rename.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".bridges-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Get returns the named profile, or the default when name is empty.
// With a single profile configured, that one acts as the default.
func (s *Store) Get(name string) *Profile {
	if name != "" {
		return s.find(name)
	}
	if s.Default != "" {
		return s.find(s.Default)
	}
	if len(s.Profiles) == 1 {
		return s.Profiles[0].withDefaults()
	}
	return nil
}

func (s *Store) find(name string) *Profile {
	for _, p := range s.Profiles {
		if p.Name == name {
			return p.withDefaults()
		}
	}
	return nil
}

// Add inserts or updates a profile. The first profile added becomes
// the default.
func (s *Store) Add(p *Profile) {
	for i, existing := range s.Profiles {
		if existing.Name == p.Name {
			s.Profiles[i] = p
			return
		}
	}
	s.Profiles = append(s.Profiles, p)
	if s.Default == "" {
		s.Default = p.Name
	}
}

// Remove deletes a profile by name. Removing the default promotes the
// first remaining profile. Reports whether anything was removed.
func (s *Store) Remove(name string) bool {
	for i, p := range s.Profiles {
		if p.Name == name {
			s.Profiles = append(s.Profiles[:i], s.Profiles[i+1:]...)
			if s.Default == name {
				s.Default = ""
				if len(s.Profiles) > 0 {
					s.Default = s.Profiles[0].Name
				}
			}
			return true
		}
	}
	return false
}

// List returns all profiles with defaults applied.
func (s *Store) List() []*Profile {
	out := make([]*Profile, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		out = append(out, p.withDefaults())
	}
	return out
}
