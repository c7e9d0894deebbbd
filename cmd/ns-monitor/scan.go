package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"Go2NetPulse/internal/discovery"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	scanInterface string
	scanRange     string
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover devices on the local subnet",
	Long: `
Broadcast ARP requests and list the hosts that answer.

Examples:
  ns-monitor scan                          # scan the /24 of the default interface
  ns-monitor scan -i eth0 -r 10.0.0.0/28   # scan a specific range
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if scanInterface != "" {
			cfg.Discovery.Interface = scanInterface
		}

		scanner, err := discovery.NewScanner(scannerConfig(cfg))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		devices, err := scanner.Scan(ctx, scanRange)
		if err != nil {
			return err
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("IP", "MAC", "HOSTNAME").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		for _, d := range devices {
			t.Row(d.IP, d.MAC, d.Hostname)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		fmt.Fprintln(cmd.OutOrStdout(), strconv.Itoa(len(devices))+" device(s) found")
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanInterface, "interface", "i", "", "interface to scan from")
	scanCmd.Flags().StringVarP(&scanRange, "range", "r", "", "CIDR range to scan (default: /24 of the interface)")
}
