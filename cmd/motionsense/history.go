package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"motionsense/internal/store"
)

func writeHistory(w io.Writer, recs []store.Record, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if recs == nil {
			recs = []store.Record{}
		}
		return enc.Encode(recs)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tSTATE\tLABEL\tDEVICE\tSYNCED")
	for _, r := range recs {
		state := "still"
		if r.IsMoving {
			state = "moving"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n",
			r.Time().UTC().Format(time.RFC3339), state, r.Label, r.DeviceID, r.Synced)
	}
	return tw.Flush()
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored motion transitions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			recs, err := db.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), recs, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum records to print")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}
