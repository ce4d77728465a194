// Package cli implements the padlock command-line interface.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/padlock/pkg/buildinfo"
	"github.com/matzehuels/padlock/pkg/cache"
)

const (
	// appName is the application name used for directories and display.
	appName = "padlock"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// RedisAddr selects the redis cache backend when set, for teams
	// sharing a registry cache. Empty means the local file cache.
	RedisAddr string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "padlock",
		Short:        "Padlock pins Python dependency closures reproducibly",
		Long:         `Padlock resolves the dependency declarations in pyproject.toml into a fully pinned padlock.lock and keeps the two mutually consistent across machines and runs.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.RedisAddr, "redis", "", "redis address for a shared registry cache (host:port)")

	// Register all subcommands
	root.AddCommand(c.lockCommand())
	root.AddCommand(c.checkCommand())
	root.AddCommand(c.verifyCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// newCache selects the byte-cache backend for registry responses:
// redis when configured, otherwise a file cache, falling back to the
// null cache when no directory is available.
func (c *CLI) newCache(cmd *cobra.Command, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}
	if c.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cmd.Context(), c.RedisAddr, appName)
		if err != nil {
			c.Logger.Warnf("redis cache unavailable, falling back to file cache: %v", err)
		} else {
			return rc
		}
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache()
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return cache.NewNullCache()
	}
	return fc
}

// cacheDir returns the cache directory using XDG standard (~/.cache/padlock/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
