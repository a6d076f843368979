package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/scenario"
)

type listFlags struct {
	configPath  string
	ecdhe       bool
	ems         bool
	cipher      string
	showSkipped bool
}

func newListCmd() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the generated conversation names",
		Long: `Print the names of every conversation the configured offer generates,
for use with --run-only, --exclude, and --expect-failure.`,
		Example: `  # List the RSA population
  tlsfuzzer list

  # List the ECDHE+EMS population including skipped conversations
  tlsfuzzer list --ecdhe --ems --skipped`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			runF := &runFlags{
				configPath: flags.configPath,
				ecdhe:      flags.ecdhe,
				ems:        flags.ems,
				cipher:     flags.cipher,
			}
			cfg, err := loadRunConfig(cmd, runF)
			if err != nil {
				return err
			}
			cfg.Target.Host = "localhost"

			params, err := buildParams(cfg)
			if err != nil {
				return err
			}
			pop, err := scenario.BuildPopulation(params)
			if err != nil {
				return err
			}

			for _, e := range pop.Entries() {
				fmt.Fprintln(os.Stdout, e.Name)
			}
			if flags.showSkipped {
				for _, name := range pop.Skipped() {
					fmt.Fprintf(os.Stdout, "%s (skipped)\n", name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "tlsfuzzer.yaml", "Harness config file")
	cmd.Flags().BoolVar(&flags.ecdhe, "ecdhe", false, "Offer ECDHE key exchange instead of RSA")
	cmd.Flags().BoolVar(&flags.ems, "ems", false, "Offer the extended_master_secret extension")
	cmd.Flags().StringVar(&flags.cipher, "cipher", "", "Cipher suite name override")
	cmd.Flags().BoolVar(&flags.showSkipped, "skipped", false, "Also list conversations removed by skip rules")

	return cmd
}
