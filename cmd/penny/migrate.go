package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pennypincher/pennypincher/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the ledger schema up to date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Printf("ledger schema at version %d\n", storage.ExpectedSchemaVersion)
			return nil
		},
	}
}
