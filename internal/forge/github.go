package forge

import (
	"fmt"
	"strings"
)

// GitHub speaks the GitHub Actions dialect, including GitHub
// Enterprise hosts.
type GitHub struct {
	Token     string
	ServerURL string
}

// AuthHeader uses the 'Bearer {token}' scheme.
func (g *GitHub) AuthHeader() string {
	return "Bearer " + g.Token
}

// APIBase lives on api.github.com for github.com and under /api/v3 for
// Enterprise hosts.
func (g *GitHub) APIBase(repo string) string {
	if g.ServerURL == "https://github.com" {
		return fmt.Sprintf("https://api.github.com/repos/%s/actions", repo)
	}
	return fmt.Sprintf("%s/api/v3/repos/%s/actions", g.ServerURL, repo)
}

// RawFileURL uses the dedicated raw host.
func (g *GitHub) RawFileURL(repo, ref, filepath string) string {
	rawBase := "https://raw.githubusercontent.com"
	if g.ServerURL != "https://github.com" {
		rawBase = strings.Replace(g.ServerURL, "https://", "https://raw.", 1)
	}
	return fmt.Sprintf("%s/%s/%s/%s", rawBase, repo, ref, filepath)
}

// PaginationParams uses per_page instead of limit.
func (g *GitHub) PaginationParams(limit, page int) string {
	return fmt.Sprintf("per_page=%d&page=%d", limit, page)
}
