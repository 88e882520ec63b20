package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/tsforecast/internal/logging"
	"github.com/inferloop/tsforecast/internal/storage"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

type ResultsOptions struct {
	Setting string
	Format  string
	Limit   int
}

func NewResultsCmd() *cobra.Command {
	opts := &ResultsOptions{}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List evaluation results recorded in the ledger",
		Example: `  # Every recorded result, newest first
  tsforecast results --config run.yaml

  # Results of one setting as JSON
  tsforecast results --setting my_setting_0 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Setting, "setting", "", "only list this setting")
	cmd.Flags().StringVar(&opts.Format, "format", "table", "output format (table, json, yaml)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows to print (0 for all)")

	return cmd
}

func runResults(cmd *cobra.Command, opts *ResultsOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Ledger.Enabled {
		return fmt.Errorf("the results ledger is disabled; set ledger.enabled")
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	ledger, err := storage.NewFactory(logger).Ledger(ctx, cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.List(ctx, opts.Setting)
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	return writeEntries(cmd.OutOrStdout(), opts.Format, entries)
}

func writeEntries(w io.Writer, format string, entries []*interfaces.ResultEntry) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(entries)
	case "table":
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSETTING\tSPLIT\tMODEL\tMSE\tMAE\tMAPE\tDIR\tSAMPLES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.6f\t%.6f\t%.6f\t%.4f\t%d\n",
			e.CreatedAt.Format(time.RFC3339), e.Setting, e.Split, e.Model,
			e.MSE, e.MAE, e.MAPE, e.DirectionalAccuracy, e.Samples)
	}
	return tw.Flush()
}
