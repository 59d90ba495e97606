package config

import (
	"flag"
	"os"
	"time"

	"github.com/skydrive-app/skydrive/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   local config directory
//	-r string   remote name for the CLI backend (e.g. "skydrive:")
//	-b string   rclone-compatible binary
//	-l string   log file (rotated); empty logs to stderr only
//	-i int      index refresh age in hours
//	-v          verbose (debug) logging
//
// The function filters os.Args to only the flags it knows about, using
// flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-r", "-b", "-l", "-i", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigDir, "d", cfg.ConfigDir, "local configuration directory")
	fs.StringVar(&cfg.RemoteName, "r", cfg.RemoteName, "remote name, including the trailing colon")
	fs.StringVar(&cfg.RcloneBinary, "b", cfg.RcloneBinary, "rclone-compatible binary")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file path (rotated)")
	refreshHours := fs.Int("i", int(cfg.IndexRefreshAge.Hours()), "index refresh age (in hours)")
	fs.BoolVar(&cfg.Debug, "v", cfg.Debug, "verbose logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.IndexRefreshAge = time.Duration(*refreshHours) * time.Hour
}
