// Package wizard provides the interactive flows of the CLI: the
// bridge-profile form and the progress spinner used while waiting on
// remote operations.
package wizard

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/Sarfflow/bridgectl/internal/tunnel"
)

// BridgeAnswers holds the wizard state while the form runs.
type BridgeAnswers struct {
	Name       string
	ProxyURL   string
	SSHUser    string
	SSHPort    string
	SetDefault bool
}

// RunBridgeForm collects a bridge profile interactively. Fields given
// as arguments are pre-filled so 'tunnel add name url' only asks for
// what is missing.
func RunBridgeForm(name, proxyURL string, hasOtherBridges bool) (*tunnel.Profile, bool, error) {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("blue"))
	fmt.Println()
	fmt.Println(titleStyle.Render("Add Bridge Profile"))
	fmt.Println()

	answers := &BridgeAnswers{
		Name:       name,
		ProxyURL:   proxyURL,
		SSHUser:    tunnel.DefaultSSHUser,
		SSHPort:    strconv.Itoa(tunnel.DefaultSSHPort),
		SetDefault: !hasOtherBridges,
	}

	fields := []huh.Field{}
	if answers.Name == "" {
		fields = append(fields, huh.NewInput().
			Title("Bridge Name").
			Description("A short identifier for this Bridge host (e.g., 'prod', 'dev-box')").
			Placeholder("my-bridge").
			Validate(validateName).
			Value(&answers.Name))
	}
	if answers.ProxyURL == "" {
		fields = append(fields, huh.NewInput().
			Title("Proxy URL").
			Description("The WebSocket proxy endpoint, including any access token").
			Placeholder("https://tunnel.example.com/abc123").
			Validate(validateProxyURL).
			Value(&answers.ProxyURL))
	}
	fields = append(fields,
		huh.NewInput().
			Title("SSH User").
			Value(&answers.SSHUser),
		huh.NewInput().
			Title("SSH Port").
			Validate(validatePort).
			Value(&answers.SSHPort),
	)
	if hasOtherBridges {
		fields = append(fields, huh.NewConfirm().
			Title("Make this the default bridge?").
			Affirmative("Yes").
			Negative("No").
			Value(&answers.SetDefault))
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		return nil, false, err
	}

	port, _ := strconv.Atoi(strings.TrimSpace(answers.SSHPort))
	profile := &tunnel.Profile{
		Name:     strings.TrimSpace(answers.Name),
		ProxyURL: strings.TrimSpace(answers.ProxyURL),
		SSHUser:  strings.TrimSpace(answers.SSHUser),
		SSHPort:  port,
	}
	return profile, answers.SetDefault, nil
}

func validateName(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("name is required")
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return fmt.Errorf("use only letters, digits, '-' and '_'")
		}
	}
	return nil
}

func validateProxyURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("proxy URL is required")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("not a valid URL")
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	}
	return fmt.Errorf("URL must use http(s) or ws(s)")
}

func validatePort(s string) error {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}
