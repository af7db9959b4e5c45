package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func onlineCmd(opts *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "online",
		Short: "Check connectivity",
		Long:  "Probe a well-known URL and report online or offline. Exits non-zero when offline with --quiet.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				online := a.commands.IsOnline(ctx)
				if quiet {
					if !online {
						return fmt.Errorf("offline")
					}
					return nil
				}
				status := "offline"
				if online {
					status = "online"
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print nothing; report through the exit status")
	return cmd
}

func fetchCmd(opts *rootOptions) *cobra.Command {
	var (
		token    string
		cacheKey string
	)

	cmd := &cobra.Command{
		Use:   "fetch <endpoint>",
		Short: "GET an endpoint through the cache",
		Long: `GET an endpoint relative to the backend base URL. With --cache-key, a cached
value is returned without contacting the backend, and a fetched body is
stored under the key.`,
		Example: `  nimbus fetch '/rest/v1/patients?id=eq.42' --cache-key patients-42 --token "$JWT"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				body, err := a.commands.ReadThrough(ctx, args[0], token, cacheKey)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), body)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token for the request")
	cmd.Flags().StringVar(&cacheKey, "cache-key", "", "Cache key to read from and write back to")
	return cmd
}

func writeCmd(opts *rootOptions) *cobra.Command {
	var (
		token    string
		body     string
		bodyFile string
	)

	cmd := &cobra.Command{
		Use:     "write <POST|PATCH|DELETE> <endpoint>",
		Short:   "Send a mutation straight to the backend",
		Long:    "Send a POST, PATCH or DELETE to the backend. The local cache is never touched.",
		Example: `  nimbus write POST /rest/v1/patients --body '{"name":"Ana"}' --token "$JWT"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("body") && bodyFile != "" {
				return fmt.Errorf("--body and --body-file are mutually exclusive")
			}

			var payload []byte
			switch {
			case cmd.Flags().Changed("body"):
				payload = []byte(body)
			case bodyFile != "":
				data, err := readInput(cmd.InOrStdin(), bodyFile)
				if err != nil {
					return err
				}
				payload = data
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				resp, err := a.commands.WriteThrough(ctx, args[0], args[1], payload, token)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token for the request")
	cmd.Flags().StringVar(&body, "body", "", "Request body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the request body from a file (- for stdin)")
	return cmd
}
