package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oriys/nimbus/internal/config"
)

func configCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, config file, environment and flags are applied. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			shown := *cfg
			shown.Backend.APIKey = redact(cfg.Backend.APIKey)
			shown.Redis.Password = redact(cfg.Redis.Password)
			if shown.Store.Driver != config.DriverRedis {
				root, err := cfg.StorageRoot()
				if err != nil {
					return err
				}
				shown.Store.Root = root
			}

			out, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
