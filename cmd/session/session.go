// Package session implements the login, logout and whoami commands.
package session

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/catchsync/internal/app"
)

// LoginCommand stores the user id catches are synced for.
func LoginCommand(current app.Provider) *cobra.Command {
	var guest bool

	cmd := &cobra.Command{
		Use:   "login [user-id]",
		Short: "Sign in as a user, or as a new guest with --guest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			var (
				uid string
				err error
			)
			switch {
			case guest:
				uid, err = a.Session.NewGuest()
			case len(args) == 1:
				uid = args[0]
				err = a.Session.SetID(uid)
			default:
				return fmt.Errorf("a user id or --guest is required")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", uid)

			if a.Settings.Sync.OnStart {
				res, _ := a.Engine.TriggerSync(cmd.Context(), uid)
				if res.Attempted > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Synced %d of %d pending catches\n", res.Synced, res.Attempted)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&guest, "guest", false, "Create a guest identity")
	return cmd
}

// LogoutCommand forgets the stored user id. Local catches are kept.
func LogoutCommand(current app.Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out; catches stay on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			if uid, ok := a.Session.CurrentID(cmd.Context()); ok {
				a.Feed.Forget(uid)
			}
			if err := a.Session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			if a.Settings.Identity.UserID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "identity.userid is set, still acting as %s\n", a.Settings.Identity.UserID)
			}
			return nil
		},
	}
}

// WhoamiCommand prints the current identity and sync state.
func WhoamiCommand(current app.Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user and pending catches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			out := cmd.OutOrStdout()
			if uid, ok := a.UserID(cmd.Context()); ok {
				fmt.Fprintf(out, "User: %s\n", uid)
			} else {
				fmt.Fprintln(out, "Not signed in")
			}

			pending, err := a.Store.Pending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pending catches: %d\n", len(pending))
			return nil
		},
	}
}
