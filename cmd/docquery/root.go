package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docquery/internal/config"
	"docquery/internal/engine"
	"docquery/internal/llm"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docquery",
		Short: "Ask natural-language questions about local documents",
		Long: `docquery drives a language model that iteratively writes and executes
small analysis scripts against your documents (PDF, XML, TXT) until it can
answer your question. Running without a subcommand starts the interactive
prompt.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			return runInteractive(cmd.Context(), eng)
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("docquery", version)
		},
	})

	return root
}

func buildEngine() (*engine.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	gateway, err := llm.New(cfg.Gateway)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, gateway)
}

func buildEngineWithConfig() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	gateway, err := llm.New(cfg.Gateway)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(cfg, gateway)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}
