package config

import (
	"flag"
	"os"
	"time"

	"github.com/outletpos/syncengine/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the remote API (default from Config)
//	-o string   outlet id used to scope pulls
//	-d string   sqlite database path
//	-i int      sync interval in seconds
//	-r int      max retries per queue item
//	-s string   conflict strategy: server-wins, client-wins or manual
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-o", "-d", "-i", "-r", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerBaseURL, "a", cfg.ServerBaseURL, "base URL of the remote API")
	fs.StringVar(&cfg.OutletID, "o", cfg.OutletID, "outlet id used to scope pulls")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "sqlite database path")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "max retries per queue item")
	fs.StringVar(&cfg.ConflictStrategy, "s", cfg.ConflictStrategy, "conflict strategy")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
