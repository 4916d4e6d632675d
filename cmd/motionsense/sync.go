package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"motionsense/internal/store"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Publish unsynced records to the MQTT broker once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Sync.Broker == "" {
				return errors.New("sync.broker is not configured")
			}
			db, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			deviceID, err := resolveDeviceID(cmd.Context(), cfg, db)
			if err != nil {
				return err
			}
			n, err := newSyncer(cfg.Sync, db, deviceID).Sync(cmd.Context())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "synced %d records\n", n)
			return err
		},
	}
}
