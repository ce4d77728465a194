package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/padlock/pkg/lockfile"
	"github.com/matzehuels/padlock/pkg/manifest"
	"github.com/matzehuels/padlock/pkg/marker"
	"github.com/matzehuels/padlock/pkg/metadata"
	"github.com/matzehuels/padlock/pkg/observability"
	"github.com/matzehuels/padlock/pkg/resolve"
)

// lockCommand creates the lock command.
func (c *CLI) lockCommand() *cobra.Command {
	var (
		manifestPath string
		lockPath     string
		noCache      bool
		refresh      bool
		maxAttempts  int
		workers      int
		timeout      time.Duration
		python       string
		platform     string
	)

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Resolve pyproject.toml into a pinned padlock.lock",
		Long: `Lock resolves the dependency declarations in pyproject.toml into a
fully pinned transitive closure and writes it to padlock.lock.

When a lock already exists and still matches the manifest, nothing is
re-resolved. Recorded artifact hashes survive re-locking: hashes are
append-only per pinned version and never overwritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := withLogger(cmd.Context(), c.Logger)
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}

			var prev *lockfile.Lock
			if _, statErr := os.Stat(lockPath); statErr == nil {
				prev, err = lockfile.Read(lockPath)
				if err != nil && !refresh {
					// Corrupt locks are never silently repaired.
					return err
				}
				if err == nil && !refresh {
					switch v := lockfile.Validate(m, prev); v.Status {
					case lockfile.StatusFresh:
						printSuccess("%s is up to date", lockPath)
						return nil
					case lockfile.StatusStale:
						printInfo("Lock is stale: %s", v.Reason)
					case lockfile.StatusCorrupt:
						return fmt.Errorf("corrupt lock: %s (pass --refresh to regenerate)", v.Reason)
					}
				}
			}
			if refresh {
				// A forced refresh does not trust previous state.
				prev = nil
			}

			roots := m.Roots()
			env := markerEnv(python, platform)
			src := metadata.NewPyPI(metadata.PyPIOptions{
				Cache:  c.newCache(cmd, noCache),
				Logger: c.Logger.Debugf,
			})

			runID := observability.NewRunID()
			c.Logger.Debugf("resolution run %s: %d direct declarations", runID, len(roots))
			observability.Resolve().OnResolveStart(ctx, runID, len(roots))

			prog := newProgress(c.Logger)
			spinner := newSpinnerWithContext(ctx, "Resolving dependencies...")
			spinner.Start()

			res, err := resolve.Resolve(ctx, src, roots, resolve.Options{
				Env:         env,
				MaxAttempts: maxAttempts,
				Prefetch:    workers,
				Logger:      c.Logger.Debugf,
			})
			observability.Resolve().OnResolveComplete(ctx, runID, countPackages(res), time.Since(prog.start), err)
			if err != nil {
				spinner.StopWithError("Resolution failed")
				return err
			}
			spinner.Stop()
			prog.done(fmt.Sprintf("Resolved %d packages", len(res.Packages)))

			lock, err := lockfile.Build(res, m.ContentHash(), prev)
			if err != nil {
				return err
			}
			if err := lockfile.Write(lockPath, lock); err != nil {
				return err
			}

			printSuccess("Locked %d packages", len(lock.Packages))
			printFile(lockPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", manifest.DefaultFilename, "manifest file to resolve")
	cmd.Flags().StringVarP(&lockPath, "lock", "l", lockfile.DefaultFilename, "lock file to write")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the registry response cache")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-resolve even when the lock is fresh")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", resolve.DefaultMaxAttempts, "backtracking attempt budget")
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent metadata prefetches (0 disables)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort resolution after this duration (0 means no deadline)")
	cmd.Flags().StringVar(&python, "python", "3.12", "target interpreter version for marker evaluation")
	cmd.Flags().StringVar(&platform, "platform", defaultPlatform(), "target sys_platform for marker evaluation")

	return cmd
}

// markerEnv builds the environment facts dependency markers evaluate
// against. The facts describe the resolution target, not the machine
// padlock happens to run on.
func markerEnv(python, platform string) marker.Environment {
	osName := "posix"
	if platform == "win32" {
		osName = "nt"
	}
	return marker.NewEnvironment(map[string]string{
		"python_version":      python,
		"python_full_version": python,
		"sys_platform":        platform,
		"os_name":             osName,
	})
}

func defaultPlatform() string {
	switch runtime.GOOS {
	case "windows":
		return "win32"
	case "darwin":
		return "darwin"
	default:
		return "linux"
	}
}

func countPackages(res *resolve.Resolution) int {
	if res == nil {
		return 0
	}
	return len(res.Packages)
}
