package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/padlock/pkg/lockfile"
	"github.com/matzehuels/padlock/pkg/metadata"
)

// showCommand creates the show command.
func (c *CLI) showCommand() *cobra.Command {
	var (
		lockPath string
		pick     bool
	)

	cmd := &cobra.Command{
		Use:   "show [package]",
		Short: "Show locked packages and their pins",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := lockfile.Read(lockPath)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				name := metadata.NormalizeName(args[0])
				pkg := lock.Get(name)
				if pkg == nil {
					return fmt.Errorf("package %q is not in the lock", name)
				}
				showPackage(lock, pkg)
				return nil
			}

			if pick {
				selected, err := pickPackage(lock.Packages)
				if err != nil {
					return err
				}
				if selected != nil {
					showPackage(lock, selected)
				}
				return nil
			}

			for _, pkg := range lock.Packages {
				tag := ""
				if pkg.Category == "dev" {
					tag = StyleDim.Render(" (dev)")
				} else if pkg.Optional {
					tag = StyleDim.Render(" (optional)")
				}
				fmt.Println(StyleValue.Render(pkg.Name) + " " + StyleHighlight.Render(pkg.Version) + tag)
			}
			printDetail("%d packages", len(lock.Packages))
			return nil
		},
	}

	cmd.Flags().StringVarP(&lockPath, "lock", "l", lockfile.DefaultFilename, "lock file to read")
	cmd.Flags().BoolVarP(&pick, "pick", "i", false, "select a package interactively")

	return cmd
}

func showPackage(lock *lockfile.Lock, pkg *lockfile.Package) {
	fmt.Println(StyleTitle.Render(pkg.Name))
	if pkg.Description != "" {
		printDetail("%s", pkg.Description)
	}
	printKeyValue("version", pkg.Version)
	printKeyValue("category", pkg.Category)
	printKeyValue("optional", fmt.Sprintf("%t", pkg.Optional))
	printKeyValue("python", pkg.PythonVersions)

	if len(pkg.Dependencies) > 0 {
		deps := make([]string, 0, len(pkg.Dependencies))
		for name, constraint := range pkg.Dependencies {
			deps = append(deps, name+" "+constraint)
		}
		slices.Sort(deps)
		printKeyValue("dependencies", strings.Join(deps, ", "))
	}
	for _, extra := range sortedExtraNames(pkg.Extras) {
		printKeyValue("extra:"+extra, strings.Join(pkg.Extras[extra], ", "))
	}
	if files := lock.Metadata.Files[pkg.Name]; len(files) > 0 {
		printKeyValue("artifacts", fmt.Sprintf("%d recorded", len(files)))
	}
}

func sortedExtraNames(extras map[string][]string) []string {
	names := make([]string, 0, len(extras))
	for name := range extras {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
