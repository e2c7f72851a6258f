package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspects or resets the candidate cache",
		Long: `Operates on the configured cache backend. Only the redis and sqlite
backends are shared with a running server; the memory backend starts empty.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Prints cache statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			stats := s.app.CacheAdmin().Stats(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Removes every cached entry and resets counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := resolveSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.app.CacheAdmin().Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})
	return cmd
}
