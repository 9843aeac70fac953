package forge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestClient builds a Client against a Gitea-dialect test server
// with sleeping disabled.
func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(&Gitea{Token: "test-token", ServerURL: srv.URL}, "owner/repo")
	c.sleep = func(time.Duration) {}
	return c
}

func TestRequestJSONRetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id": 42}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.RequestJSON(context.Background(), "GET", srv.URL+"/thing", nil, &out); err != nil {
		t.Fatalf("RequestJSON() error = %v", err)
	}
	if out.ID != 42 {
		t.Errorf("decoded ID = %d, want 42", out.ID)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRequestJSONDoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "no such workflow"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.RequestJSON(context.Background(), "GET", srv.URL+"/thing", nil, nil)
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	var forgeErr *Error
	if !errors.As(err, &forgeErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", attempts)
	}
}

func TestRequestJSONMapsAuthErrors(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := newTestClient(srv)
		err := c.RequestJSON(context.Background(), "GET", srv.URL+"/thing", nil, nil)
		srv.Close()

		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Errorf("status %d: error type = %T, want *AuthError", status, err)
		}
	}
}

func TestRequestSetsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	if err := c.RequestJSON(context.Background(), "GET", srv.URL+"/thing", nil, nil); err != nil {
		t.Fatalf("RequestJSON() error = %v", err)
	}
	if gotAuth != "token test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "token test-token")
	}
}

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"message field", `{"message": "not found"}`, "not found"},
		{"error field", `{"error": "bad ref"}`, "bad ref"},
		{"message wins", `{"message": "a", "error": "b"}`, "a"},
		{"not json", `<html>oops</html>`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apiErrorDetail([]byte(tt.payload)); got != tt.want {
				t.Errorf("apiErrorDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForgeURLPrimitives(t *testing.T) {
	gitea := &Gitea{Token: "t", ServerURL: "https://codeberg.org"}
	if got := gitea.APIBase("o/r"); got != "https://codeberg.org/api/v1/repos/o/r/actions" {
		t.Errorf("Gitea.APIBase() = %q", got)
	}
	if got := gitea.RawFileURL("o/r", "logs", "x.log"); got != "https://codeberg.org/api/v1/repos/o/r/raw/logs/x.log" {
		t.Errorf("Gitea.RawFileURL() = %q", got)
	}

	github := &GitHub{Token: "t", ServerURL: "https://github.com"}
	if got := github.APIBase("o/r"); got != "https://api.github.com/repos/o/r/actions" {
		t.Errorf("GitHub.APIBase() = %q", got)
	}
	if got := github.PaginationParams(20, 2); got != "per_page=20&page=2" {
		t.Errorf("GitHub.PaginationParams() = %q", got)
	}
}
