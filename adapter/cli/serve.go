package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/meridian/adapter/api"
	"github.com/felixgeelhaar/meridian/internal/app"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with the outbox relay, hold sweeper and sync consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := cliLogger()

		container, err := app.NewContainer(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()
		container.Start(ctx)

		serverCfg := api.DefaultServerConfig()
		if cfg.HTTPAddr != "" {
			serverCfg.Addr = cfg.HTTPAddr
		}
		server := api.NewServer(serverCfg, api.HandlersFromContainer(container), log)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
