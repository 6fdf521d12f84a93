package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/ewsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ewsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ewsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ewsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/ewsync/internal/core/services"
)

var version = "dev"

// cacheCleanupInterval is how often the in-memory discovery cache drops expired entries.
const cacheCleanupInterval = 10 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersion(version)

	configStore, err := file.NewConfigStore("")
	if err != nil {
		log.Printf("failed to create config store: %v", err)
		return 1
	}
	settingsSvc := services.NewSettingsService(configStore)

	w := &wiring{}

	// Sync state and the discovery cache persist in SQLite. Without it
	// discover still works and sync state lasts for this run only.
	store, err := sqlite.NewStore("")
	if err != nil {
		log.Printf("Warning: state database unavailable, sync state will not persist: %v", err)
		w.syncStore = memory.NewSyncStateStore()
		w.cache = memory.NewDiscoveryCache(cacheCleanupInterval)
	} else {
		defer store.Close()
		w.syncStore = store.SyncStateStore()
		w.cache = store.DiscoveryCache()
	}

	cli.SetServices(&cli.Services{
		Settings: settingsSvc,
		Factory:  w,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
