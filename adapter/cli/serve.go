package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/adapter/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the booking HTTP API.

Without RABBITMQ_URL the outbox processor, the in-process event bus and the
background jobs run inside this process. With a broker configured, serve
only writes to the outbox and "therapia worker" delivers the events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := ContainerFor(ctx)
		if err != nil {
			return err
		}

		if c.InProcessEventBus != nil {
			if err := c.StartBackground(ctx); err != nil {
				return err
			}
		}

		cfg := api.ServerConfigFrom(c.Config)
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}
		server := api.NewServer(cfg, c)

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		Logger().Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
