package forge

import "fmt"

// Gitea speaks the Gitea/Forgejo/Codeberg Actions dialect.
type Gitea struct {
	Token     string
	ServerURL string
}

// AuthHeader uses the 'token {token}' scheme.
func (g *Gitea) AuthHeader() string {
	return "token " + g.Token
}

// APIBase is the v1 repo Actions path on the same host.
func (g *Gitea) APIBase(repo string) string {
	return fmt.Sprintf("%s/api/v1/repos/%s/actions", g.ServerURL, repo)
}

// RawFileURL serves raw files through the API, not a separate host.
func (g *Gitea) RawFileURL(repo, ref, filepath string) string {
	return fmt.Sprintf("%s/api/v1/repos/%s/raw/%s/%s", g.ServerURL, repo, ref, filepath)
}

// PaginationParams uses limit instead of per_page.
func (g *Gitea) PaginationParams(limit, page int) string {
	return fmt.Sprintf("limit=%d&page=%d", limit, page)
}
