package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clubatlas/internal/config"
)

func getConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the clubatlas configuration file",
	}
	cmd.AddCommand(getConfigGenerateCmd(), getConfigShowCmd(), getConfigValidateCmd())
	return cmd
}

func getConfigGenerateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a documented default config file",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := config.Generate(output)
			if err != nil {
				return err
			}
			fmt.Printf("config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "target path (default ~/.config/clubatlas/clubatlas.yaml)")
	return cmd
}

func getConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			body, err := cfg.Render()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(body)
			return err
		},
	}
}

func getConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check that a config file parses and validates",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := config.ValidateFile(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", args[0])
			return nil
		},
	}
}
