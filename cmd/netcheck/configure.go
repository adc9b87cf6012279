package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smash64-online/netcheck/internal/config"
)

func configureCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Interactively edit the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}
			return config.RunSetupWizard(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "set <field> <value>",
		Short:   "Set a single checker field, e.g. 'set ping_count 5'",
		Example: "  netcheck configure set username smash64.online\n  netcheck configure set timeout_sec 3",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}

			if err := cfg.UpdateCheckerField(args[0], parseValue(args[1])); err != nil {
				// numeric-looking names are still strings
				if err := cfg.UpdateCheckerField(args[0], args[1]); err != nil {
					return err
				}
			}
			if result := config.Validate(cfg); !result.IsValid() {
				return result.Errors[0]
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "checker.%s = %s\n", args[0], args[1])
			return nil
		},
	})

	return cmd
}

// parseValue turns a command line value into the JSON type it most
// likely stands for.
func parseValue(raw string) interface{} {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
