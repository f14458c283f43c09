// Package catches implements the catch management commands.
package catches

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/catchsync/internal/app"
	"github.com/tphakala/catchsync/internal/catalog"
	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/catchsync"
	"github.com/tphakala/catchsync/internal/feed"
)

// CaptureCommand stores a photo as a new catch.
func CaptureCommand(current app.Provider) *cobra.Command {
	var (
		label      string
		confidence float64
		lat, lng   float64
	)

	cmd := &cobra.Command{
		Use:   "capture <image>",
		Short: "Record a new catch from a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := catalog.CaptureRequest{
				ImagePath:  args[0],
				Label:      label,
				Confidence: confidence,
			}
			if cmd.Flags().Changed("lat") {
				req.Lat = &lat
			}
			if cmd.Flags().Changed("lng") {
				req.Lng = &lng
			}

			a := current()
			rec, err := a.Catalog.Capture(cmd.Context(), req)
			if err != nil {
				return err
			}
			// the background upload is awaited by Close
			fmt.Fprintf(cmd.OutOrStdout(), "Captured %s (%s)\n", rec.LocalID, rec.SpeciesLabel)
			return nil
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "Species label (default Unknown)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Classifier confidence between 0 and 1")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude of the catch")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude of the catch")
	return cmd
}

// ListCommand prints the merged catch feed.
func ListCommand(current app.Provider) *cobra.Command {
	var (
		refresh bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local and remote catches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			load := a.Catalog.Feed
			if refresh {
				load = a.Catalog.Refresh
			}
			snap, err := load(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), snap.Rows)
			}
			return printFeed(cmd.OutOrStdout(), &snap)
		},
	}

	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "Run a sync pass before listing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}

func printFeed(out io.Writer, snap *feed.Snapshot) error {
	switch {
	case !snap.Identified:
		fmt.Fprintln(out, "Not signed in, showing catches on this device only.")
	case snap.RemoteErr != nil && snap.Stale:
		fmt.Fprintf(out, "Server unreachable, showing catches cached at %s.\n", snap.FetchedAt.Format("2006-01-02 15:04"))
	case snap.RemoteErr != nil:
		fmt.Fprintln(out, "Server unreachable, showing catches on this device only.")
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSPECIES\tCREATED\tSTATE")
	for _, r := range snap.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Key(), r.Label(), r.CreatedAt(), rowState(r))
	}
	return tw.Flush()
}

func rowState(r catch.MergedRow) string {
	if r.Kind() == catch.RowRemote {
		return "synced"
	}
	if r.Local.HasRemote() {
		return "label pending"
	}
	return "pending upload"
}

// RelabelCommand changes the species label of a local catch.
func RelabelCommand(current app.Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "relabel <local-id> <species>",
		Short: "Change the species of a catch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current().Catalog.Relabel(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Relabelled %s as %s\n", args[0], args[1])
			return nil
		},
	}
}

// DeleteCommand deletes the catch behind a feed row key.
func DeleteCommand(current app.Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <row-key>",
		Short: "Delete a catch (keys as printed by list, e.g. local:<id> or remote:<id>)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := catch.ParseRowKey(args[0])
			if !ok {
				// a bare number is a remote id, anything else a local id
				if id, err := strconv.ParseInt(args[0], 10, 64); err == nil {
					key = catch.RowKey{Kind: catch.RowRemote, RemoteID: id}
				} else {
					key = catch.RowKey{Kind: catch.RowLocal, LocalID: args[0]}
				}
			}
			if err := current().Catalog.DeleteRow(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
			return nil
		},
	}
}

// UploadCommand uploads one pending catch right away.
func UploadCommand(current app.Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <local-id>",
		Short: "Upload a single pending catch now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := current().Catalog.UploadOne(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			PrintResult(cmd.OutOrStdout(), &res)
			return nil
		},
	}
}

// CollectionCommand prints the species collection.
func CollectionCommand(current app.Provider) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Show every species caught, in order of first catch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			col, err := current().Catalog.Collection(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), col)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tSPECIES\tFIRST CAUGHT\tCATCHES")
			for i, sp := range col.Species {
				first := "-"
				if !sp.FirstCaught.IsZero() {
					first = sp.FirstCaught.Format("2006-01-02")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i+1, sp.Label, first, sp.Count)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d species\n", col.Total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

// PrintResult writes a one-line pass summary followed by per-record errors.
func PrintResult(out io.Writer, r *catchsync.Result) {
	if r.Skipped {
		if r.UserID == "" {
			fmt.Fprintln(out, "Not signed in, nothing synced.")
		} else {
			fmt.Fprintln(out, "A sync pass is already running.")
		}
		return
	}
	fmt.Fprintf(out, "Attempted %d, synced %d, failed %d, missing images %d (%s)\n",
		r.Attempted, r.Synced, r.Failed, r.SkippedMissing, r.Duration.Round(time.Millisecond))
	for id, err := range r.Errors {
		fmt.Fprintf(out, "  %s: %v\n", id, err)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
