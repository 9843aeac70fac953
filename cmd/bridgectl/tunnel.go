package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Sarfflow/bridgectl/internal/tunnel"
	"github.com/Sarfflow/bridgectl/internal/wizard"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boldStyle = lipgloss.NewStyle().Bold(true)
)

var (
	tunnelSetDefault bool
	tunnelHostAlias  string

	tunnelCmd = &cobra.Command{
		Use:   "tunnel",
		Short: "Manage bridge profiles and the direct transport",
	}

	tunnelAddCmd = &cobra.Command{
		Use:   "add [name] [proxy-url]",
		Short: "Add or update a bridge profile",
		Long: `Add a bridge profile. Missing arguments are collected interactively.
The first profile added becomes the default.`,
		Args: cobra.MaximumNArgs(2),
		RunE: runTunnelAdd,
	}

	tunnelRemoveCmd = &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a bridge profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runTunnelRemove,
	}

	tunnelListCmd = &cobra.Command{
		Use:   "list",
		Short: "List configured bridge profiles",
		RunE:  runTunnelList,
	}

	tunnelStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Check connectivity of the direct transport",
		RunE:  runTunnelStatus,
	}

	tunnelSSHConfigCmd = &cobra.Command{
		Use:   "ssh-config [name]",
		Short: "Print or install an SSH config entry for a bridge",
		Long: `Print a Host block for ~/.ssh/config that routes plain 'ssh <name>'
through the tunnel helper. With --install the block is written into
~/.ssh/config, replacing any previously installed block for the same
bridge.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTunnelSSHConfig,
	}

	tunnelSSHCmd = &cobra.Command{
		Use:   "ssh [name] [-- command...]",
		Short: "Open an interactive SSH session to a bridge",
		RunE:  runTunnelSSH,
	}

	tunnelInstall bool
)

func init() {
	tunnelAddCmd.Flags().BoolVar(&tunnelSetDefault, "default", false, "Make this profile the default")
	tunnelSSHConfigCmd.Flags().BoolVar(&tunnelInstall, "install", false, "Write the entry into ~/.ssh/config")
	tunnelSSHConfigCmd.Flags().StringVar(&tunnelHostAlias, "alias", "", "Host alias to use (default: the bridge name)")

	tunnelCmd.AddCommand(tunnelAddCmd, tunnelRemoveCmd, tunnelListCmd, tunnelStatusCmd, tunnelSSHConfigCmd, tunnelSSHCmd)
	rootCmd.AddCommand(tunnelCmd)
}

func runTunnelAdd(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	name, proxyURL := "", ""
	if len(args) > 0 {
		name = args[0]
	}
	if len(args) > 1 {
		proxyURL = args[1]
	}

	profile, setDefault, err := wizard.RunBridgeForm(name, proxyURL, len(rt.bridges.List()) > 0)
	if err != nil {
		return err
	}
	if tunnelSetDefault {
		setDefault = true
	}

	rt.bridges.Add(profile)
	if setDefault {
		rt.bridges.Default = profile.Name
	}
	if err := rt.bridges.Save(); err != nil {
		return err
	}

	fmt.Printf("Bridge '%s' saved.\n", profile.Name)
	if rt.bridges.Default == profile.Name {
		fmt.Println(dimStyle.Render("This is now the default bridge."))
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := wizard.RunWithSpinner(ctx, "Testing connectivity", func() (any, error) {
		if rt.transport.TestConnectivity(ctx, profile.Name) {
			return true, nil
		}
		return false, fmt.Errorf("SSH probe failed")
	})
	if err != nil || res != true {
		fmt.Println(dimStyle.Render("The bridge is saved; check the proxy URL and helper server, then run 'bridgectl tunnel status'."))
	}
	return nil
}

func runTunnelRemove(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	name := args[0]
	if !rt.bridges.Remove(name) {
		return &tunnel.BridgeNotFoundError{Name: name}
	}
	if err := rt.bridges.Save(); err != nil {
		return err
	}
	fmt.Printf("Bridge '%s' removed.\n", name)
	if rt.bridges.Default != "" {
		fmt.Printf("Default bridge is now '%s'.\n", rt.bridges.Default)
	}
	return nil
}

func runTunnelList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	profiles := rt.bridges.List()
	if jsonOut {
		printJSON(map[string]any{
			"default": rt.bridges.Default,
			"bridges": profiles,
		})
		return nil
	}

	if len(profiles) == 0 {
		fmt.Println("No bridges configured. Run 'bridgectl tunnel add <name> <url>'.")
		return nil
	}
	for _, p := range profiles {
		marker := "  "
		if p.Name == rt.bridges.Default {
			marker = boldStyle.Render("* ")
		}
		fmt.Printf("%s%s  %s@localhost:%d  %s\n",
			marker, boldStyle.Render(p.Name), p.SSHUser, p.SSHPort, dimStyle.Render(p.ProxyURL))
	}
	return nil
}

func runTunnelStatus(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	status := rt.transport.CheckStatus(ctx, bridgeName)
	if jsonOut {
		printJSON(status)
		if !status.SSHWorks {
			return errors.New("direct transport unavailable")
		}
		return nil
	}

	if !status.Configured {
		return errors.New(status.Error)
	}

	fmt.Printf("Bridge:    %s\n", status.BridgeName)
	fmt.Printf("Proxy URL: %s\n", status.ProxyURL)
	fmt.Printf("Helper:    %s\n", status.HelperPath)
	if !status.SSHWorks {
		fmt.Println(badStyle.Render("✗ " + status.Error))
		return errors.New("SSH connection failed")
	}
	fmt.Println(okStyle.Render("✓ SSH connection works"))
	return nil
}

func runTunnelSSHConfig(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	name := bridgeName
	if len(args) > 0 {
		name = args[0]
	}
	profile := rt.bridges.Get(name)
	if profile == nil {
		if name != "" {
			return &tunnel.BridgeNotFoundError{Name: name}
		}
		return fmt.Errorf("no bridge configured")
	}

	ctx, cancel := signalContext()
	defer cancel()
	if _, err := rt.transport.EnsureHelper(ctx); err != nil {
		return err
	}

	if !tunnelInstall {
		fmt.Println(rt.transport.SSHConfigBlock(profile, tunnelHostAlias))
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(homeDir, ".ssh", "config")
	if err := rt.transport.InstallSSHConfig(configPath, profile, tunnelHostAlias); err != nil {
		return err
	}
	alias := tunnelHostAlias
	if alias == "" {
		alias = profile.Name
	}
	fmt.Printf("Installed. Connect with: ssh %s\n", alias)
	return nil
}

func runTunnelSSH(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	name := bridgeName
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		dash = len(args)
	}
	if dash > 0 {
		name = args[0]
	}
	remoteCommand := strings.Join(args[dash:], " ")

	ctx, cancel := signalContext()
	defer cancel()

	argv, err := rt.transport.InteractiveArgs(ctx, name, remoteCommand)
	if err != nil {
		return err
	}

	sshCmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	sshCmd.Stdin = os.Stdin
	sshCmd.Stdout = os.Stdout
	sshCmd.Stderr = os.Stderr
	return sshCmd.Run()
}
