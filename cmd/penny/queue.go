package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline mutation queue",
	}
	cmd.AddCommand(queueListCmd())
	cmd.AddCommand(queueSyncCmd())
	cmd.AddCommand(queueClearCmd())
	return cmd
}

func queueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mutations waiting for replay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue := openQueue()
			defer func() { _ = queue.Close() }()

			entries, err := queue.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("queue is empty")
				return nil
			}

			for _, e := range entries {
				fmt.Printf("%s  %s  queued %s  retries %d",
					e.ID, e.Mutation, e.Timestamp.Local().Format(time.RFC3339), e.RetryCount)
				if e.LastError != "" {
					fmt.Printf("  last error: %s", e.LastError)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func queueSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued mutations against the ledger now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			queue := openQueue()
			defer func() { _ = queue.Close() }()

			manager := newManager(store, queue)
			if err := manager.Sync(ctx); err != nil {
				return err
			}

			status := manager.Status(ctx)
			fmt.Printf("sync complete, %d entries remaining\n", status.QueueSize)
			return nil
		},
	}
}

func queueClearCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all queued mutations without replaying them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("refusing to discard queued mutations without --force")
			}

			queue := openQueue()
			defer func() { _ = queue.Close() }()

			if err := queue.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("queue cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm discarding unsent mutations")
	return cmd
}
