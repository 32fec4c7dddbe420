package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"obesityboard/config"
)

var (
	configOutput string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default config file",
	Annotations: map[string]string{"skipConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configOutput); err == nil && !configForce {
			return errors.Errorf("%s already exists (use --force to overwrite)", configOutput)
		}
		if err := config.Save(config.Default(), configOutput); err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "wrote %s\n", configOutput)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = out(cmd).Write(b)
		return err
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", config.DefaultFile, "output path")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
