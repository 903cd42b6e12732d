package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmaher/flowline/internal/config"
	"github.com/dmaher/flowline/internal/graph"
)

var validateCommand = &cobra.Command{
	Use:   "validate",
	Short: "Validate a pipeline config without running it",
	Long:  "Loads the config file, checks field constraints, and validates the stage graph (unknown dependencies, cycles, merge modes).",
	RunE:  validateConfigCmd,
}

var validateConfigPath string

func init() {
	validateCommand.Flags().StringVar(&validateConfigPath, "config", "", "Path to config.json file")
	if err := validateCommand.MarkFlagRequired("config"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(validateCommand)
}

func validateConfigCmd(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(validateConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	g, err := graph.New(cfg.Stages)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Config OK: %d stages\n", g.Len())
	for _, def := range g.Stages() {
		markers := ""
		if def.Checkpoint {
			markers += " [checkpoint]"
		}
		if def.Gated {
			markers += " [gated]"
		}
		if def.Final {
			markers += " [final]"
		}
		if def.ParallelGroup != "" {
			markers += fmt.Sprintf(" [group:%s]", def.ParallelGroup)
		}
		_, _ = fmt.Fprintf(os.Stdout, "  %s (%s)%s\n", def.Name, def.Kind, markers)
	}
	return nil
}
