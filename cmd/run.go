package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/format"
	"github.com/sells-group/procurement-cli/internal/model"
)

var (
	runFactors []string
	runAnswer  string
	runOutput  string
	runXLSX    string
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Run a single comparison analysis to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initEnv()
		if err != nil {
			return err
		}

		t := env.store.Create(args[0], runFactors)
		if err := env.engine.Run(ctx, t.ID); err != nil {
			return eris.Wrap(err, "analysis")
		}

		t, err = env.store.Get(t.ID)
		if err != nil {
			return err
		}

		if t.Stage == model.StageAwaitingUser {
			if runAnswer == "" {
				return eris.Errorf("query needs clarification: %s (rerun with --answer)", t.ClarificationQuestion)
			}
			if err := env.engine.Resume(ctx, t.ID, runAnswer); err != nil {
				return err
			}
			env.engine.Wait()

			t, err = env.store.Get(t.ID)
			if err != nil {
				return err
			}
		}

		if t.Stage != model.StageDone {
			return eris.Errorf("analysis ended in stage %s: %s", t.Stage, t.ErrorMessage)
		}

		zap.L().Info("analysis complete",
			zap.String("task", t.ID),
			zap.Int("products", len(t.Products)),
			zap.Int("rounds", t.Round),
		)

		if runXLSX != "" {
			order := make([]string, 0, len(t.Sources))
			for _, src := range t.Sources {
				order = append(order, src.ID)
			}
			if err := format.WriteXLSX(runXLSX, t.Products, order, t.Factors); err != nil {
				return err
			}
		}

		if runOutput != "" {
			return os.WriteFile(runOutput, []byte(t.CSV), 0o644)
		}
		fmt.Print(t.CSV)
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runFactors, "factor", nil, "comparison factor (repeatable; overrides the category template)")
	runCmd.Flags().StringVar(&runAnswer, "answer", "", "clarification answer to use if the query is ambiguous")
	runCmd.Flags().StringVar(&runOutput, "output", "", "write CSV to file instead of stdout")
	runCmd.Flags().StringVar(&runXLSX, "xlsx", "", "also write an xlsx workbook to this path")
	rootCmd.AddCommand(runCmd)
}
