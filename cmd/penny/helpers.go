package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/pennypincher/pennypincher/internal/entry"
	"github.com/pennypincher/pennypincher/internal/outbox"
	"github.com/pennypincher/pennypincher/internal/service"
	"github.com/pennypincher/pennypincher/internal/storage"
)

func setConfigDefaults() {
	dataDir := defaultDataDir()
	viper.SetDefault("db.path", filepath.Join(dataDir, "ledger.db"))
	viper.SetDefault("outbox.path", filepath.Join(dataDir, "outbox.db"))
	viper.SetDefault("outbox.max_retries", outbox.DefaultMaxRetries)
	viper.SetDefault("outbox.poll_interval", "1s")
	viper.SetDefault("infer.debounce_ms", 300)
	viper.SetDefault("infer.lookback_days", 90)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "penny")
}

// openStorage opens and migrates the local ledger.
func openStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(viper.GetString("db.path"))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return store, nil
}

func openQueue() *outbox.Queue {
	return outbox.Open(viper.GetString("outbox.path"))
}

func managerConfig() outbox.Config {
	cfg := outbox.DefaultConfig()
	cfg.MaxRetries = viper.GetInt("outbox.max_retries")
	if interval := viper.GetDuration("outbox.poll_interval"); interval > 0 {
		cfg.PollInterval = interval
	}
	return cfg
}

func coordinatorConfig() entry.Config {
	return entry.Config{
		Debounce:     time.Duration(viper.GetInt("infer.debounce_ms")) * time.Millisecond,
		LookbackDays: viper.GetInt("infer.lookback_days"),
	}
}

// newManager wires the outbox against the ledger, which serves as both
// replay target and reachability probe.
func newManager(store *storage.SQLiteStorage, queue *outbox.Queue) *outbox.Manager {
	var prober service.Prober = store
	return outbox.NewManager(queue, prober, entry.NewReplayer(store), managerConfig())
}
