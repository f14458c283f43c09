// Package sync implements the sync command.
package sync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/catchsync/cmd/catches"
	"github.com/tphakala/catchsync/internal/app"
)

// Command runs one sync pass for the current user.
func Command(current app.Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload pending catches and reconcile labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			uid, ok := a.UserID(cmd.Context())
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in, catches stay on this device.")
				return nil
			}
			res, _ := a.Engine.TriggerSync(cmd.Context(), uid)
			catches.PrintResult(cmd.OutOrStdout(), &res)
			return nil
		},
	}
}
