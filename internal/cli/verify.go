package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/padlock/pkg/integrity"
	"github.com/matzehuels/padlock/pkg/lockfile"
	"github.com/matzehuels/padlock/pkg/metadata"
	"github.com/matzehuels/padlock/pkg/pep440"
)

// verifyCommand creates the verify command.
func (c *CLI) verifyCommand() *cobra.Command {
	var (
		lockPath string
		pkgName  string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify recorded artifact hashes against the registry",
		Long: `Verify downloads every distribution file recorded in the lock and
recomputes its digest. A mismatch is treated as a tampering or
corruption signal and aborts immediately with a non-zero exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := withLogger(cmd.Context(), c.Logger)
			if pkgName != "" {
				pkgName = metadata.NormalizeName(pkgName)
			}

			lock, err := lockfile.Read(lockPath)
			if err != nil {
				return err
			}

			src := metadata.NewPyPI(metadata.PyPIOptions{Logger: c.Logger.Debugf})

			checked := 0
			for _, pkg := range lock.Packages {
				if pkgName != "" && pkg.Name != pkgName {
					continue
				}
				files := lock.Metadata.Files[pkg.Name]
				if len(files) == 0 {
					c.Logger.Debugf("no recorded artifacts for %s", pkg.Name)
					continue
				}

				version, err := pep440.Parse(pkg.Version)
				if err != nil {
					return err
				}

				for _, h := range files {
					data, err := src.FetchArtifact(ctx, pkg.Name, version, h.Filename)
					if err != nil {
						return err
					}
					if err := integrity.Verify(h, data); err != nil {
						printError("%s: %s", pkg.Name, h.Filename)
						return err
					}
					c.Logger.Debugf("verified %s", h.Filename)
					checked++
				}
			}

			if pkgName != "" && checked == 0 {
				return fmt.Errorf("no recorded artifacts for package %q", pkgName)
			}
			printSuccess("Verified %d artifacts", checked)
			return nil
		},
	}

	cmd.Flags().StringVarP(&lockPath, "lock", "l", lockfile.DefaultFilename, "lock file to verify")
	cmd.Flags().StringVarP(&pkgName, "package", "p", "", "verify a single package only")

	return cmd
}
