package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cohortgen/cohortgen/internal/spec"
)

// ValidationResult holds validation results for one or more spec files.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// FileValidation is the outcome for one specification file.
type FileValidation struct {
	Path   string   `json:"path"`
	Kind   string   `json:"kind"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var profilePaths, journeyPaths, triggerPaths []string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate specification files without generating",
		Long: `Validate profile, journey, and trigger specification files against the
embedded schema and cross-reference rules, without running any generation.

Example:
  cohortgen validate --profile diabetes.yaml --journey care-path.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, profilePaths, journeyPaths, triggerPaths)
		},
	}

	cmd.Flags().StringSliceVar(&profilePaths, "profile", nil, "profile specification file(s)")
	cmd.Flags().StringSliceVar(&journeyPaths, "journey", nil, "journey specification file(s)")
	cmd.Flags().StringSliceVar(&triggerPaths, "triggers", nil, "trigger specification file(s)")

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command, profiles, journeys, triggers []string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if len(profiles)+len(journeys)+len(triggers) == 0 {
		_ = formatter.Error(ErrCodeGeneric, "no specification files given", nil)
		return WrapExitError(ExitCommandError, "nothing to validate", nil)
	}

	result := ValidationResult{Valid: true}
	check := func(path, kind string, load func(string) error) {
		fv := FileValidation{Path: path, Kind: kind, Valid: true}
		if err := load(path); err != nil {
			fv.Valid = false
			fv.Errors = append(fv.Errors, err.Error())
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	for _, p := range profiles {
		check(p, "profile", func(path string) error {
			_, err := spec.LoadProfile(path)
			return err
		})
	}
	for _, p := range journeys {
		check(p, "journey", func(path string) error {
			_, err := spec.LoadJourney(path)
			return err
		})
	}
	for _, p := range triggers {
		check(p, "triggers", func(path string) error {
			_, err := spec.LoadTriggers(path)
			return err
		})
	}

	renderErr := formatter.SuccessText(result, func(w io.Writer) {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(w, "ok    %s (%s)\n", fv.Path, fv.Kind)
				continue
			}
			fmt.Fprintf(w, "FAIL  %s (%s)\n", fv.Path, fv.Kind)
			for _, e := range fv.Errors {
				fmt.Fprintf(w, "      %s\n", e)
			}
		}
	})
	if renderErr != nil {
		return renderErr
	}
	if !result.Valid {
		return WrapExitError(ExitFailure, "validation failed", nil)
	}
	return nil
}
