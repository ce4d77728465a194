package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/padlock/pkg/graphexport"
	"github.com/matzehuels/padlock/pkg/lockfile"
)

// exportCommand creates the export command.
func (c *CLI) exportCommand() *cobra.Command {
	var (
		lockPath   string
		format     string
		output     string
		includeDev bool
		versions   bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the locked dependency graph as DOT or SVG",
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := lockfile.Read(lockPath)
			if err != nil {
				return err
			}

			dot := graphexport.ToDOT(lock, graphexport.Options{
				IncludeDev: includeDev,
				Versions:   versions,
			})

			var data []byte
			switch format {
			case "dot":
				data = []byte(dot)
			case "svg":
				data, err = graphexport.RenderSVG(cmd.Context(), dot)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (expected dot or svg)", format)
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Exported %d packages", len(lock.Packages))
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&lockPath, "lock", "l", lockfile.DefaultFilename, "lock file to export")
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format (dot, svg)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&includeDev, "dev", false, "include dev-category packages")
	cmd.Flags().BoolVar(&versions, "versions", true, "include pinned versions in labels")

	return cmd
}
