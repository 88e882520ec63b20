package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/internal/experiment"
	"github.com/inferloop/tsforecast/pkg/constants"
)

func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the configured model and evaluate it",
		Long: `Run itr iterations. Each iteration trains a fresh model, keeps the
checkpoint with the lowest validation loss and evaluates it on the val and
test splits.`,
		Example: `  # Three epochs of ETSformer on the default synthetic series
  tsforecast train --train_epochs 3

  # Identity baseline, univariate, with telemetry on :9090
  tsforecast train --model Identity --features S --telemetry_addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			return runTrain(ctx, cmd, rt)
		},
	}

	addExperimentFlags(cmd)
	f := cmd.Flags()
	f.Int("itr", 0, "experiment iterations")
	f.Int("train_epochs", 0, "training epochs")
	f.Int("patience", 0, "early stopping patience")
	f.Float64("learning_rate", 0, "optimizer learning rate")
	f.String("lradj", "", "learning rate schedule")
	f.Int("log_every", 0, "log training progress every n iterations")
	f.Bool("plot", false, "draw the loss curve next to the checkpoint")
	f.String("telemetry_addr", "", "serve /metrics and /health on this address")

	return cmd
}

func runTrain(ctx context.Context, cmd *cobra.Command, rt *session) error {
	cfg := rt.cfg
	out := cmd.OutOrStdout()

	for ii := 0; ii < cfg.Iterations; ii++ {
		setting := cfg.Setting(ii)
		log := rt.logger.WithFields(logrus.Fields{
			"setting":   setting,
			"iteration": ii,
		})

		exp, err := experiment.New(cfg, rt.options(ii)...)
		if err != nil {
			return err
		}

		log.Info(">>>>>>>start training")
		summary, err := exp.Train(ctx, setting)
		if err != nil {
			return fmt.Errorf("training %s: %w", setting, err)
		}
		log.WithFields(logrus.Fields{
			"epochs":        summary.Epochs,
			"early_stopped": summary.EarlyStopped,
			"best_vali":     summary.BestValiLoss,
		}).Info("Training finished")

		log.Info(">>>>>>>testing")
		val, err := exp.Test(ctx, setting, constants.SplitVal, false)
		if err != nil {
			return fmt.Errorf("testing %s on %s: %w", setting, constants.SplitVal, err)
		}
		test, err := exp.Test(ctx, setting, constants.SplitTest, cfg.SaveVals)
		if err != nil {
			return fmt.Errorf("testing %s on %s: %w", setting, constants.SplitTest, err)
		}

		fmt.Fprintf(out, "%s\n", setting)
		printReport(out, val)
		printReport(out, test)
	}

	return nil
}
