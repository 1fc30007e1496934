package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go.pilab.hu/recovery/internal/server"
	"go.pilab.hu/recovery/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session inspector over HTTP until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = appConfig.HTTPAddr
		}

		a, err := newApp(ctx, appConfig, appLogger, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		srv := server.NewHTTPServer(addr, appConfig.OtelServiceName, a.manager, a.registry, appLogger)
		errCh := make(chan error, 1)
		go func() {
			appLogger.Info(ctx, "Session inspector listening", log.Fields{"addr": addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		appLogger.Info(context.Background(), "Shutting down session inspector")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides HTTP_ADDR)")
}
