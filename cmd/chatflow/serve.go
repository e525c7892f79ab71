package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/chatflow/pkg/adapters/file"
	chathttp "github.com/aretw0/chatflow/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and management HTTP server",
	Long: `Starts the WhatsApp webhook receiver together with the flow management API,
the OpenAPI document and Prometheus metrics. Configuration comes from CHATFLOW_* variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		setup, err := createEngine(ctx, cfg, logger, engineOptions{Registerer: prometheus.DefaultRegisterer})
		if err != nil {
			return err
		}
		defer func() {
			if err := setup.Close(); err != nil {
				logger.Warn("close backends", "err", err)
			}
		}()

		// Optional: activate a flow document at boot.
		if path, _ := cmd.Flags().GetString("flow"); path != "" {
			if err := activateFile(ctx, setup, path, cfg.WhatsApp.ProjectID); err != nil {
				return err
			}
			logger.Info("flow activated from file", "path", path, "project_id", cfg.WhatsApp.ProjectID)
		}

		handler, err := chathttp.NewHandler(setup.Engine,
			chathttp.WithVerifyToken(cfg.WhatsApp.VerifyToken),
			chathttp.WithGatherer(prometheus.DefaultGatherer),
			chathttp.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("chatflow server listening", "addr", srv.Addr, "sessions", cfg.Store.Sessions)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout)

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown did not complete: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("chatflow server stopped gracefully")
		return nil
	},
}

// activateFile loads a flow document and activates it for projectID.
func activateFile(ctx context.Context, setup *engineSetup, path, projectID string) error {
	if projectID == "" {
		return errors.New("--flow needs CHATFLOW_WHATSAPP_PROJECT_ID to know which project to activate")
	}
	g, err := file.LoadGraph(path)
	if err != nil {
		return err
	}
	res, err := setup.Engine.Activate(ctx, projectID, g)
	if err != nil {
		for _, msg := range res.Errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", msg)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address, overrides CHATFLOW_HTTP_ADDR")
	serveCmd.Flags().String("flow", "", "Flow document to activate at boot for CHATFLOW_WHATSAPP_PROJECT_ID")
}
