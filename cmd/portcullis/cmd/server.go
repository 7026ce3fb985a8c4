package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/portcullis/internal/config"
	"github.com/jmcleod/portcullis/internal/server"
)

var (
	serverAddr string
	dataDir    string
	tlsCert    string
	tlsKey     string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the site, the admin panel and the auth API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(func(c *config.Config) {
			if cmd.Flags().Changed("addr") {
				c.Server.Addr = serverAddr
			}
			if cmd.Flags().Changed("data-dir") {
				c.Storage.Path = filepath.Join(dataDir, "portcullis.db")
			}
			if cmd.Flags().Changed("tls-cert") {
				c.Server.TLSCert = tlsCert
			}
			if cmd.Flags().Changed("tls-key") {
				c.Server.TLSKey = tlsKey
			}
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := server.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Machine.Bootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrapping default principal: %w", err)
		}

		handler, err := app.Handler()
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
			cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCert, cfg.Server.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			srv.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		printBanner(os.Stdout, "server")
		if cfg.Development() {
			logger.Warn("running in development mode: cookies are not Secure")
			if cfg.Auth.SessionSecret == "" {
				logger.Warn("no session secret configured, using the development secret")
			}
		}
		logger.Info("starting server", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "tls", srv.TLSConfig != nil)
		return serve(ctx, srv)
	},
}

// serve runs srv until it fails or ctx is cancelled, then shuts it down
// gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	done := make(chan error, 1)
	go func() {
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVar(&serverAddr, "addr", ":8080", "Address to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for the bbolt credential store")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
