package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cohortgen/cohortgen/internal/store"
)

// CohortsOptions holds flags for the cohorts command.
type CohortsOptions struct {
	*RootOptions
	Name  string
	Limit int
}

// NewCohortsCommand creates the cohorts command (list saved cohorts).
func NewCohortsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CohortsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cohorts",
		Short: "List saved cohorts",
		Long: `List cohorts saved in the store, newest first.

Example:
  cohortgen cohorts --name diabetes --limit 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCohorts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "filter by name substring")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (0 = all)")

	return cmd
}

func runCohorts(opts *CohortsOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(viper.GetString("store"))
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer st.Close()

	infos, err := st.List(cmd.Context(), store.Filter{Name: opts.Name, Limit: opts.Limit})
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list cohorts", err)
	}

	return formatter.SuccessText(infos, func(w io.Writer) {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.AppendHeader(table.Row{"ID", "Name", "Created", "Records"})
		for _, info := range infos {
			tw.AppendRow(table.Row{info.ID, info.Name, info.CreatedAt, info.Records})
		}
		tw.Render()
	})
}
