package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/config"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/report"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/scenario"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tui"
)

type uiFlags struct {
	configPath string
	noForm     bool
}

func newUICmd() *cobra.Command {
	flags := &uiFlags{}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Run the harness interactively",
		Long: `Collect run options through an interactive form, then execute the run
with a live result view. Failed conversation names can be copied to the
clipboard for the next --expect-failure invocation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runUI(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "tlsfuzzer.yaml", "Harness config file")
	cmd.Flags().BoolVar(&flags.noForm, "no-form", false, "Skip the options form and use the config as-is")

	return cmd
}

func runUI(cmd *cobra.Command, flags *uiFlags) error {
	runF := &runFlags{configPath: flags.configPath}
	cfg, err := loadRunConfig(cmd, runF)
	if err != nil {
		return err
	}
	if cfg.Target.Host == "" {
		cfg.Target.Host = "localhost"
	}

	if !flags.noForm {
		opts, err := tui.RunForm(tui.RunOptions{
			Host:        cfg.Target.Host,
			Port:        cfg.Target.Port,
			KeyExchange: string(cfg.Protocol.KeyExchange),
			EMS:         cfg.Protocol.ExtendedMasterSecret,
			SampleLimit: cfg.Run.SampleLimit,
			Seed:        cfg.Run.Seed,
		})
		if err != nil {
			return err
		}
		cfg.Target.Host = opts.Host
		cfg.Target.Port = opts.Port
		cfg.Protocol.KeyExchange = config.KeyExchange(opts.KeyExchange)
		cfg.Protocol.ExtendedMasterSecret = opts.EMS
		cfg.Run.SampleLimit = opts.SampleLimit
		cfg.Run.Seed = opts.Seed
	}

	params, err := buildParams(cfg)
	if err != nil {
		return err
	}
	pop, err := scenario.BuildPopulation(params)
	if err != nil {
		return err
	}
	total := len(pop.Regular())
	if cfg.Run.SampleLimit > 0 && cfg.Run.SampleLimit < total {
		total = cfg.Run.SampleLimit
	}
	total += 2 * len(pop.Sanity())

	start := func(onResult func(report.Result)) (*report.Summary, error) {
		return executeRun(cfg, runF, io.Discard, onResult)
	}

	model := tui.NewModel(total, start)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

func newValidateConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a harness config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			cfg, err := config.Load(configPath, false)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s: OK\n", configPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "tlsfuzzer.yaml", "Harness config file")
	return cmd
}
