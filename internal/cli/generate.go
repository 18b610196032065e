package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cohortgen/cohortgen/internal/cohort"
	"github.com/cohortgen/cohortgen/internal/profile"
	"github.com/cohortgen/cohortgen/internal/spec"
	"github.com/cohortgen/cohortgen/internal/store"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	ProfilePath  string
	JourneyPath  string
	TriggersPath string
	Seed         int64
	SeedSet      bool
	StartDate    string
	Save         string
	Workers      int
}

// GenerateResult is the JSON payload of a successful run.
type GenerateResult struct {
	CohortID  string         `json:"cohort_id,omitempty"`
	Report    profile.Report `json:"report"`
	Timelines map[string]int `json:"timelines,omitempty"`
	Events    int            `json:"events"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a cohort from a profile specification",
		Long: `Generate a cohort of synthetic entities from a profile specification,
optionally realizing a journey for each entity and coordinating cross-domain
triggers.

Example:
  cohortgen generate --profile diabetes.yaml --journey care-path.yaml \
    --triggers claims-sync.yaml --seed 42 --save diabetes-pilot`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SeedSet = cmd.Flags().Changed("seed")
			return runGenerate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ProfilePath, "profile", "", "profile specification file (required)")
	cmd.Flags().StringVar(&opts.JourneyPath, "journey", "", "journey specification file")
	cmd.Flags().StringVar(&opts.TriggersPath, "triggers", "", "trigger specification file")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "root seed (overrides the profile's seed)")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "timeline start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Save, "save", "", "save the cohort to the store under this name")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "parallel workers (default from config)")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func runGenerate(opts *GenerateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadRunConfig(opts)
	if err != nil {
		if spec.IsSchemaValidation(err) {
			_ = formatter.Error(ErrCodeSchema, err.Error(), nil)
			return WrapExitError(ExitFailure, "specification invalid", err)
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load specifications", err)
	}

	workers := opts.Workers
	if workers == 0 {
		workers = viper.GetInt("workers")
	}
	gen := cohort.NewGenerator(cohort.WithExecutor(profile.NewExecutor(
		profile.WithWorkers(workers),
	)))

	result, err := gen.Generate(cmd.Context(), *cfg)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneration, err.Error(), nil)
		return WrapExitError(ExitFailure, "generation failed", err)
	}

	out := GenerateResult{Report: result.Report}
	for product, tls := range result.Timelines {
		if out.Timelines == nil {
			out.Timelines = make(map[string]int)
		}
		out.Timelines[product] = len(tls)
		for _, tl := range tls {
			out.Events += len(tl.Events)
		}
	}

	if opts.Save != "" {
		st, err := store.Open(viper.GetString("store"))
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open store", err)
		}
		defer st.Close()

		records, err := store.CohortRecords(result)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "marshal cohort", err)
		}
		id, err := st.Save(cmd.Context(), opts.Save, records)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "save cohort", err)
		}
		out.CohortID = id
	}

	return formatter.SuccessText(out, func(w io.Writer) {
		fmt.Fprintf(w, "generated %d/%d entities (seed %d)\n", out.Report.Generated, out.Report.Requested, out.Report.Seed)
		for product, n := range out.Timelines {
			fmt.Fprintf(w, "  %s: %d timelines\n", product, n)
		}
		if len(out.Report.Failures) > 0 {
			fmt.Fprintf(w, "  %d entities failed:\n", len(out.Report.Failures))
			for _, f := range out.Report.Failures {
				fmt.Fprintf(w, "    entity %d: %s\n", f.Index, f.Error)
			}
		}
		if out.CohortID != "" {
			fmt.Fprintf(w, "saved as cohort %s\n", out.CohortID)
		}
	})
}

// loadRunConfig loads and validates every referenced specification file.
func loadRunConfig(opts *GenerateOptions) (*cohort.Config, error) {
	p, err := spec.LoadProfile(opts.ProfilePath)
	if err != nil {
		return nil, err
	}
	if opts.SeedSet {
		s := opts.Seed
		p.Generation.Seed = &s
	}

	cfg := &cohort.Config{Profile: p}

	if opts.JourneyPath != "" {
		j, err := spec.LoadJourney(opts.JourneyPath)
		if err != nil {
			return nil, err
		}
		cfg.Journey = j
	}
	if opts.TriggersPath != "" {
		ts, err := spec.LoadTriggers(opts.TriggersPath)
		if err != nil {
			return nil, err
		}
		cfg.Triggers = ts
	}
	if opts.StartDate != "" {
		start, err := time.Parse("2006-01-02", opts.StartDate)
		if err != nil {
			return nil, fmt.Errorf("parse start date %q: %w", opts.StartDate, err)
		}
		cfg.StartDate = start
	}
	return cfg, nil
}
