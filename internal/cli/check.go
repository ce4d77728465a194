package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/padlock/pkg/lockfile"
	"github.com/matzehuels/padlock/pkg/manifest"
)

// checkCommand creates the check command.
func (c *CLI) checkCommand() *cobra.Command {
	var (
		manifestPath string
		lockPath     string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether padlock.lock still matches pyproject.toml",
		Long: `Check validates the lock against the manifest without touching the
network. The lock is fresh when the manifest's content hash matches the
recorded one, every direct declaration is satisfied by its pin, and no
locked package is orphaned. A stale lock exits 1; a corrupt lock exits
with an error and is never repaired.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			lock, err := lockfile.Read(lockPath)
			if err != nil {
				return err
			}

			switch v := lockfile.Validate(m, lock); v.Status {
			case lockfile.StatusFresh:
				printSuccess("%s is consistent with %s", lockPath, manifestPath)
				printDetail("%d packages pinned", len(lock.Packages))
				return nil
			case lockfile.StatusStale:
				printWarning("Lock is stale: %s", v.Reason)
				return fmt.Errorf("lock is stale, run %q to regenerate", "padlock lock")
			default:
				printError("Lock is corrupt: %s", v.Reason)
				return fmt.Errorf("corrupt lock: %s", v.Reason)
			}
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", manifest.DefaultFilename, "manifest file to check against")
	cmd.Flags().StringVarP(&lockPath, "lock", "l", lockfile.DefaultFilename, "lock file to validate")

	return cmd
}
