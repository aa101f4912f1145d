package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/taskreview/internal/api"
	"github.com/mrz1836/taskreview/internal/signal"
)

// exitForced is the exit status after a second interrupt.
const exitForced = 130

// addServeCommand adds the serve command that runs the HTTP API.
func addServeCommand(root *cobra.Command, s *session) {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the task review HTTP API until interrupted.

The first SIGINT or SIGTERM drains in-flight requests within
server.shutdown_timeout. A second signal exits immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := GetLogger()
			handler := signal.NewHandler(cmd.Context(), signal.WithForce(func(sig os.Signal) {
				logger.Warn().Str("signal", sig.String()).Msg("forced exit")
				CloseLogFile()
				os.Exit(exitForced)
			}))
			defer handler.Stop()

			a, err := s.open(handler.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					logger.Warn().Err(cerr).Msg("engine close failed")
				}
			}()

			if addr == "" {
				addr = s.cfg.Server.Addr
			}
			srv := api.New(a.service, a.auth,
				api.WithLogger(logger),
				api.WithMetricsGatherer(a.registry),
				api.WithMaxUploadBytes(s.cfg.Server.MaxUploadBytes),
			)

			logger.Info().
				Str("addr", addr).
				Str("store", s.cfg.Store.Driver).
				Str("identity", s.cfg.Identity.Mode).
				Msg("serving task review API")

			if err := srv.Run(handler.Context(), addr, api.Timeouts{
				Read:     s.cfg.Server.ReadTimeout,
				Write:    s.cfg.Server.WriteTimeout,
				Shutdown: s.cfg.Server.ShutdownTimeout,
			}); err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}

			if sig := handler.Signal(); sig != nil {
				logger.Info().Str("signal", sig.String()).Msg("shut down")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	root.AddCommand(cmd)
}
