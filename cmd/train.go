package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/cheggaaa/pb.v1"

	"obesityboard/ml"
	"obesityboard/pipeline"
)

var (
	trainData     string
	trainTrees    int
	trainSeed     int64
	trainOut      string
	trainJSON     bool
	trainProgress bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run the pipeline once and print the evaluation",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		if f.Changed("data") {
			cfg.Dataset.Path = trainData
		}
		if f.Changed("trees") {
			cfg.Pipeline.TreeCount = trainTrees
		}
		if f.Changed("seed") {
			cfg.Pipeline.Seed = trainSeed
		}
		if f.Changed("out") {
			cfg.Model.Path = trainOut
		}

		var opts pipeline.Options
		var bar *pb.ProgressBar
		if trainProgress && !trainJSON {
			bar = pb.New(cfg.Pipeline.TreeCount)
			bar.Output = cmd.ErrOrStderr()
			bar.Prefix("trees ")
			bar.Start()
			opts.OnTreeFitted = func(done, total int) { bar.Set(done) }
		}

		result, err := runPipeline(cmd.Context(), cfg, log, opts)
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
			if err := store.SaveRun(cmd.Context(), result); err != nil {
				log.Warn("save run", zap.Error(err))
			}
		}
		if err := saveBundle(result, cfg.Model.Path, log); err != nil {
			return err
		}

		if trainJSON {
			enc := json.NewEncoder(out(cmd))
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		printReport(out(cmd), result)
		return nil
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainData, "data", "", "dataset CSV path (overrides config)")
	trainCmd.Flags().IntVar(&trainTrees, "trees", 0, "number of trees (overrides config)")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 0, "random seed (overrides config)")
	trainCmd.Flags().StringVar(&trainOut, "out", "", "write the model bundle to this path")
	trainCmd.Flags().BoolVar(&trainJSON, "json", false, "print the result as JSON")
	trainCmd.Flags().BoolVar(&trainProgress, "progress", true, "show a progress bar while fitting trees")
	rootCmd.AddCommand(trainCmd)
}

func printReport(w io.Writer, result *pipeline.Result) {
	fmt.Fprintf(w, "run %s\n", result.RunID)
	fmt.Fprintf(w, "rows: %d loaded, %d outliers removed (BMI outside [%.2f, %.2f])\n",
		result.InputRows, result.Removed, result.Bounds.Lower, result.Bounds.Upper)
	fmt.Fprintf(w, "split: %d train / %d test\n\n", len(result.TrainIndex), len(result.TestIndex))
	fmt.Fprintf(w, "Model accuracy: %.2f\n\n", result.Report.Accuracy)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tprecision\trecall\tf1-score\tsupport\t")
	for _, c := range result.Report.Classes {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", c.Class, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintln(tw, "\t\t\t\t\t")
	for _, c := range []ml.ClassMetrics{result.Report.MacroAvg, result.Report.WeightedAvg} {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", c.Class, c.Precision, c.Recall, c.F1, c.Support)
	}
	tw.Flush()

	fmt.Fprintln(w, "\nFeature importance")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, imp := range result.Importances {
		fmt.Fprintf(tw, "  %s\t%.4f\n", imp.Feature, imp.Importance)
	}
	tw.Flush()

	if n := len(result.Quality); n > 0 {
		fmt.Fprintf(w, "\n%d data quality issues (see /api/quality)\n", n)
	}
}
