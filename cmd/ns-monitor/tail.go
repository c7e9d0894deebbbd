package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Go2NetPulse/internal/model"
	"Go2NetPulse/internal/probe"

	"github.com/spf13/cobra"
)

var tailURL string

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the packet feed published to NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if tailURL != "" {
			cfg.Publisher.NATSURL = tailURL
		}
		if cfg.Publisher.NATSURL == "" {
			return fmt.Errorf("no NATS URL configured, set publisher.nats_url or --url")
		}

		sub, err := probe.NewSubscriber(cfg.Publisher)
		if err != nil {
			return fmt.Errorf("failed to create subscriber: %w", err)
		}
		defer sub.Close()

		out := cmd.OutOrStdout()
		err = sub.Start(func(r model.PacketRecord) {
			fmt.Fprintf(out, "%s %-5s %s:%d -> %s:%d %d bytes\n",
				r.Timestamp.Format(model.TimestampLayout), r.Protocol,
				r.SourceIP, r.SourcePort, r.DestIP, r.DestPort, r.Size)
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	tailCmd.Flags().StringVar(&tailURL, "url", "", "NATS server URL (overrides publisher.nats_url)")
}
