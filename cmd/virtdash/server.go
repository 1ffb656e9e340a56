package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/virtdash/virtdash/internal/dashboard"
	"github.com/virtdash/virtdash/internal/models"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Inspect and control individual servers",
}

var serverShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a server's snapshot, display state, and OS",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerShow,
}

var serverPowerCmd = &cobra.Command{
	Use:   "power <id> <boot|restart|shutdown|poweroff>",
	Short: "Dispatch a power action",
	Args:  cobra.ExactArgs(2),
	RunE:  runServerPower,
}

var serverVNCCmd = &cobra.Command{
	Use:   "vnc <id>",
	Short: "Show VNC console details",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerVNC,
}

var serverTrafficCmd = &cobra.Command{
	Use:   "traffic <id>",
	Short: "Show monthly traffic usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerTraffic,
}

var serverPasswordCmd = &cobra.Command{
	Use:   "password <id>",
	Short: "Show the vault-held root password",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerPassword,
}

var serverResetPasswordCmd = &cobra.Command{
	Use:   "reset-password <id>",
	Short: "Generate a new root password",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerResetPassword,
}

var serverActionsCmd = &cobra.Command{
	Use:   "actions <id>",
	Short: "Show recent power action history",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerActions,
}

var serverOSCmd = &cobra.Command{
	Use:   "os <id>",
	Short: "Show the resolved operating system label",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerOS,
}

func init() {
	serverCmd.AddCommand(
		serverShowCmd,
		serverPowerCmd,
		serverVNCCmd,
		serverTrafficCmd,
		serverPasswordCmd,
		serverResetPasswordCmd,
		serverActionsCmd,
		serverOSCmd,
	)
	rootCmd.AddCommand(serverCmd)
}

func parseServerID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("server id must be a positive integer, got %q", arg)
	}
	return id, nil
}

// colorState wraps a display state in ANSI color when stdout is a TTY.
func colorState(state models.DisplayState) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return string(state)
	}
	switch state {
	case models.StateRunning:
		return "\033[32m" + string(state) + "\033[0m"
	case models.StateStopped:
		return "\033[31m" + string(state) + "\033[0m"
	default:
		return "\033[33m" + string(state) + "\033[0m"
	}
}

func runServerShow(cmd *cobra.Command, args []string) error {
	id, err := parseServerID(args[0])
	if err != nil {
		return err
	}
	var resp dashboard.V1ServerResponse
	if err := newDaemonClient().get(fmt.Sprintf("/v1/servers/%d", id), &resp); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%d\n", resp.Server.ID)
	fmt.Fprintf(w, "Name\t%s\n", resp.Server.Name)
	fmt.Fprintf(w, "State\t%s\n", colorState(resp.DisplayState))
	fmt.Fprintf(w, "OS\t%s (%s)\n", resp.OS.Name, resp.OS.Icon)
	fmt.Fprintf(w, "CPU\t%d cores\n", resp.Server.Resources.CPUCores)
	fmt.Fprintf(w, "Memory\t%d MB\n", resp.Server.Resources.MemoryMB)
	fmt.Fprintf(w, "Storage\t%d GB\n", resp.Server.Resources.StorageGB)
	for _, iface := range resp.Server.Interfaces {
		addrs := append(append([]string{}, iface.IPv4...), iface.IPv6...)
		fmt.Fprintf(w, "NIC %s\t%s\n", iface.Name, strings.Join(addrs, ", "))
	}
	if !resp.Server.FetchedAt.IsZero() {
		fmt.Fprintf(w, "Fetched\t%s\n", resp.Server.FetchedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return w.Flush()
}

func runServerPower(cmd *cobra.Command, args []string) error {
	id, err := parseServerID(args[0])
	if err != nil {
		return err
	}
	action, ok := models.ValidPowerAction(args[1])
	if !ok {
		return fmt.Errorf("unknown power action %q (want boot, restart, shutdown, or poweroff)", args[1])
	}

	var resp dashboard.V1PowerResponse
	status, err := newDaemonClient().doRaw("POST", fmt.Sprintf("/v1/servers/%d/power/%s", id, action), &resp)
	if err != nil {
		return err
	}
	switch {
	case status >= 500:
		return fmt.Errorf("daemon returned status %d", status)
	case !resp.Accepted:
		return fmt.Errorf("%s rejected: %s", action, resp.Message)
	case resp.Pending:
		fmt.Printf("%s queued behind another operation (%s)\n", action, resp.Message)
	default:
		fmt.Printf("%s accepted for server %d\n", action, id)
	}
	return nil
}

func runServerVNC(cmd *cobra.Command, args []string) error {
	id, err := parseServerID(args[0])
	if err != nil {
		return err
	}
	var vnc models.VncStatus
	if err := newDaemonClient().get(fmt.Sprintf("/v1/servers/%d/vnc", id), &vnc); err != nil {
		return err
	}
	if !vnc.Enabled {
		fmt.Println("VNC is not enabled for this server")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Host\t%s\n", vnc.Hostname)
	fmt.Fprintf(w, "IP\t%s\n", vnc.IP)
	fmt.Fprintf(w, "Port\t%d\n", vnc.Port)
	fmt.Fprintf(w, "Password\t%s\n", vnc.Password)
	return w.Flush()
}

func runServerTraffic(cmd *cobra.Command, args []string) error {
	id, err := parseServerID(args[0])
	if err != nil {
		return err
	}
	var periods []models.TrafficPeriod
	if err := newDaemonClient().get(fmt.Sprintf("/v1/servers/%d/traffic", id), &periods); err != nil {
		return err
	}
	if len(periods) == 0 {
		fmt.Println("no traffic data")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tRX\tTX\tTOTAL\tLIMIT")
	for _, p := range periods {
		limit := "-"
		if p.LimitBytes > 0 {
			limit = formatBytes(p.LimitBytes)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Month, formatBytes(p.RxBytes), formatBytes(p.TxBytes), formatBytes(p.TotalBytes), limit)
	}
	return w.Flush()
}

func runServerPassword(cmd *cobra.Command, args []string) error {
	id, err := parseServerID(args[0])
	if err != nil {
		return err
	}
	var resp dashboard.V1PasswordResponse
	if err := newDaemonClient().get(fmt.Sprintf("/v1/servers/%d/password", id), &resp); err != nil {
		return err
	}
	fmt.Println(resp.Password)
	fmt.Fprintf(os.Stderr, "expires %s\n", resp.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runServerResetPassword(cmd *cobra.Command, args []string) error {
	id, err := parseServerID(args[0])
	if err != nil {
		return err
	}
	var resp dashboard.V1PasswordResponse
	if err := newDaemonClient().post(fmt.Sprintf("/v1/servers/%d/password/reset", id), &resp); err != nil {
		return err
	}
	fmt.Println(resp.Password)
	if !resp.ExpiresAt.IsZero() {
		fmt.Fprintf(os.Stderr, "stored until %s\n", resp.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}

func runServerOS(cmd *cobra.Command, args []string) error {
	id, err := parseServerID(args[0])
	if err != nil {
		return err
	}
	var resp dashboard.V1ServerResponse
	if err := newDaemonClient().get(fmt.Sprintf("/v1/servers/%d", id), &resp); err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", resp.OS.Name, resp.OS.Icon)
	return nil
}

func runServerActions(cmd *cobra.Command, args []string) error {
	id, err := parseServerID(args[0])
	if err != nil {
		return err
	}
	var resp dashboard.V1ActionsResponse
	if err := newDaemonClient().get(fmt.Sprintf("/v1/servers/%d/actions", id), &resp); err != nil {
		return err
	}
	if len(resp.Actions) == 0 {
		fmt.Println("no power actions recorded")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tRESULT\tMESSAGE")
	for _, a := range resp.Actions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			a.Timestamp.Format("2006-01-02 15:04:05"), a.Action, a.Result, a.Message)
	}
	return w.Flush()
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
