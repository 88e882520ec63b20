package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/internal/experiment"
	"github.com/inferloop/tsforecast/pkg/constants"
)

type TestOptions struct {
	Setting   string
	Split     string
	Iteration int
}

func NewTestCmd() *cobra.Command {
	opts := &TestOptions{}

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Evaluate an existing checkpoint",
		Long: `Load the checkpoint of a setting and evaluate it on one split. The
setting defaults to the name train would have used for --iteration.`,
		Example: `  # Re-evaluate the first iteration on the test split
  tsforecast test --config run.yaml

  # Evaluate a named setting on the validation split
  tsforecast test --setting my_setting_0 --split val`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			switch opts.Split {
			case constants.SplitVal, constants.SplitTest:
			default:
				return fmt.Errorf("unsupported split %q: use %s or %s", opts.Split, constants.SplitVal, constants.SplitTest)
			}
			if opts.Setting == "" {
				opts.Setting = cfg.Setting(opts.Iteration)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			exp, err := experiment.New(cfg, rt.options(opts.Iteration)...)
			if err != nil {
				return err
			}

			saveVals := cfg.SaveVals && opts.Split == constants.SplitTest
			report, err := exp.Test(ctx, opts.Setting, opts.Split, saveVals)
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	addExperimentFlags(cmd)
	cmd.Flags().StringVar(&opts.Setting, "setting", "", "setting to evaluate")
	cmd.Flags().StringVar(&opts.Split, "split", constants.SplitTest, "split to evaluate (val or test)")
	cmd.Flags().IntVar(&opts.Iteration, "iteration", 0, "iteration whose setting to evaluate when --setting is empty")

	return cmd
}

func printReport(w io.Writer, r *experiment.TestReport) {
	m := r.Metrics
	fmt.Fprintf(w, "  %-5s mse:%.6f mae:%.6f rmse:%.6f mape:%.6f mspe:%.6f dir:%.4f shape:%v\n",
		r.Split, m.MSE, m.MAE, m.RMSE, m.MAPE, m.MSPE, r.DirectionalAccuracy, r.Shape)
}
