package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/portcullis/internal/config"
	"github.com/jmcleod/portcullis/internal/server"
)

var (
	gateAddr     string
	gateUpstream string
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run the route gate as a reverse proxy in front of an upstream server",
	Long: `Run the route gate at the edge. Requests for protected paths must carry a
valid session cookie signed with the shared secret; all other requests, and
authenticated ones, are proxied to the upstream unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(func(c *config.Config) {
			if cmd.Flags().Changed("addr") {
				c.Gate.Addr = gateAddr
			}
			if cmd.Flags().Changed("upstream") {
				c.Gate.Upstream = gateUpstream
			}
		})
		if err != nil {
			return err
		}
		upstream, err := url.Parse(cfg.Gate.Upstream)
		if err != nil || upstream.Scheme == "" || upstream.Host == "" {
			return fmt.Errorf("gate.upstream must be an absolute URL, got %q", cfg.Gate.Upstream)
		}

		_, sessions, err := server.NewSessions(cfg, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              cfg.Gate.Addr,
			Handler:           server.GateHandler(cfg.GateRules(), sessions, upstream, logger),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		printBanner(os.Stdout, "gate")
		logger.Info("starting gate", "addr", cfg.Gate.Addr, "upstream", upstream.String())
		return serve(ctx, srv)
	},
}

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.Flags().StringVar(&gateAddr, "addr", ":8081", "Address to listen on")
	gateCmd.Flags().StringVar(&gateUpstream, "upstream", "http://127.0.0.1:8080", "Upstream server URL")
}
