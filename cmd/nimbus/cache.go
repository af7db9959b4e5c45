package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func cacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and edit the local cache",
	}
	cmd.AddCommand(
		cacheGetCmd(opts),
		cachePutCmd(opts),
		cacheDeleteCmd(opts),
		cacheClearCmd(opts),
		cacheKeysCmd(opts),
	)
	return cmd
}

func cacheGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the cached value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				value, found, err := a.commands.GetCached(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("key %q is not cached", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func cachePutCmd(opts *rootOptions) *cobra.Command {
	var valueFile string

	cmd := &cobra.Command{
		Use:   "put <key> [value]",
		Short: "Store a value under a key",
		Long:  "Store a value under a key. The value comes from the second argument, or from --file (use - for stdin).",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			switch {
			case len(args) == 2 && valueFile != "":
				return fmt.Errorf("pass the value as an argument or with --file, not both")
			case len(args) == 2:
				value = args[1]
			case valueFile != "":
				data, err := readInput(cmd.InOrStdin(), valueFile)
				if err != nil {
					return err
				}
				value = string(data)
			default:
				return fmt.Errorf("a value is required")
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return a.commands.PutCached(ctx, args[0], value)
			})
		},
	}

	cmd.Flags().StringVarP(&valueFile, "file", "f", "", "Read the value from a file (- for stdin)")
	return cmd
}

func cacheDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a cached entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return a.commands.DeleteCached(ctx, args[0])
			})
		},
	}
}

func cacheClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return a.commands.ClearCache(ctx)
			})
		},
	}
}

func cacheKeysCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List cached keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				keys, err := a.commands.ListCacheKeys(ctx)
				if err != nil {
					return err
				}
				sort.Strings(keys)
				out := cmd.OutOrStdout()
				for _, k := range keys {
					fmt.Fprintln(out, k)
				}
				return nil
			})
		},
	}
}
