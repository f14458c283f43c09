// Package serve implements the serve command.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/catchsync/internal/api"
	"github.com/tphakala/catchsync/internal/app"
	"github.com/tphakala/catchsync/internal/logger"
)

// Command runs the local HTTP API together with background sync until the
// process is interrupted.
func Command(current app.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local catch API and sync in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			log := logger.Global().Module("serve")

			opts := []api.ServerOption{api.WithImages(a.Images)}
			if a.Metrics != nil {
				opts = append(opts, api.WithMetricsHandler(a.Metrics.Handler()))
			}
			srv, err := api.New(a.Settings, a.Catalog, a.Engine, a.Identity, opts...)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", srv.Addr())

			// blocks until interrupted
			a.RunSync(cmd.Context())

			log.Info("shutting down")
			return srv.Shutdown()
		},
	}

	cmd.Flags().String("listen", "", "Address for the HTTP API (default 127.0.0.1:8765)")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	return cmd
}
