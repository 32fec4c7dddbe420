package cmd

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"obesityboard/pipeline"
)

var (
	predictModel string
	predictInput pipeline.Input
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify one observation with a saved model bundle",
	Example: `  obesityboard predict --model models/forest.json --age 35 --gender Male --height 175 --weight 92`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := predictModel
		if path == "" {
			path = cfg.Model.Path
		}
		if path == "" {
			return errors.New("no model bundle given (use --model or model.path)")
		}
		bundle, err := pipeline.LoadBundle(path)
		if err != nil {
			return err
		}
		pred, err := bundle.Predictor().Predict(predictInput)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out(cmd))
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"run_id":     bundle.RunID,
			"label":      pred.Label,
			"vote_share": pred.VoteShare,
			"bmi":        pred.BMI,
		})
	},
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictModel, "model", "", "model bundle path (default model.path)")
	f.IntVar(&predictInput.Age, "age", 0, "age in years")
	f.StringVar(&predictInput.Gender, "gender", "", "gender as it appears in the training data")
	f.Float64Var(&predictInput.Height, "height", 0, "height in cm")
	f.Float64Var(&predictInput.Weight, "weight", 0, "weight in kg")
	f.Float64Var(&predictInput.BMI, "bmi", 0, "BMI (derived from height and weight when 0)")
	_ = predictCmd.MarkFlagRequired("gender")
	rootCmd.AddCommand(predictCmd)
}
