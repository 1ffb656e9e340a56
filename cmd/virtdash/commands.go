package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/virtdash/virtdash/internal/buildinfo"
	"github.com/virtdash/virtdash/internal/dashboard"
	"github.com/virtdash/virtdash/internal/models"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the OS template catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp dashboard.V1TemplatesResponse
		if err := newDaemonClient().get("/v1/templates", &resp); err != nil {
			return err
		}
		if len(resp.Templates) == 0 {
			fmt.Println("no templates available")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVERSION\tVARIANT\tARCH")
		for _, t := range resp.Templates {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", int(t.ID), t.Name, t.Version, t.Variant, t.Arch)
		}
		return w.Flush()
	},
}

var brandingCmd = &cobra.Command{
	Use:   "branding",
	Short: "Show panel branding",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var branding models.Branding
		if err := newDaemonClient().get("/v1/branding", &branding); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Name\t%s\n", branding.Name)
		fmt.Fprintf(w, "Logo\t%s\n", branding.LogoURL)
		fmt.Fprintf(w, "Color\t%s\n", branding.PrimaryColor)
		return w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp dashboard.V1StatusResponse
		if err := newDaemonClient().get("/v1/status", &resp); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Version\t%s\n", resp.Version)
		fmt.Fprintf(w, "Uptime\t%ds\n", resp.UptimeSeconds)
		fmt.Fprintf(w, "Metrics\t%v\n", resp.MetricsEnabled)
		watched := "none"
		if len(resp.WatchedServers) > 0 {
			parts := make([]string, len(resp.WatchedServers))
			for i, id := range resp.WatchedServers {
				parts[i] = fmt.Sprintf("%d", id)
			}
			watched = strings.Join(parts, ", ")
		}
		fmt.Fprintf(w, "Watched\t%s\n", watched)
		for category, count := range resp.CacheEntries {
			fmt.Fprintf(w, "Cache %s\t%d entries\n", category, count)
		}
		return w.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(buildinfo.String())
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd, brandingCmd, statusCmd, versionCmd)
}
