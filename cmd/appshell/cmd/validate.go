package cmd

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/appshell/logging"
	"github.com/GoCodeAlone/appshell/manifest"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate an application manifest",
		Long: `Load a YAML, TOML or JSON manifest, apply APPSHELL_<APP>_* overrides and
report every problem found, including factories the binary does not provide.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			errs := []error{m.Validate()}
			catalog := DemoCatalog(logging.NewNop())
			for _, spec := range m.Apps {
				if spec.Factory == "" {
					continue
				}
				if _, err := catalog.Lookup(spec.Factory); err != nil {
					errs = append(errs, fmt.Errorf("app %q: %w", spec.Name, err))
				}
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d application(s), %d enabled\n", args[0], len(m.Apps), len(m.Enabled()))
			return nil
		},
	}
}
