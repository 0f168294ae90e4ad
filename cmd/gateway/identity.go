package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/iemabdullah/ai-generator-2api/internal/config"
	"github.com/iemabdullah/ai-generator-2api/internal/identity"
)

func newIdentityCmd(configPath *string) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Print synthesized upstream identities as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			synth := identity.NewSynthesizer(identity.Profile{
				Origin:         cfg.Upstream.Origin,
				UserAgent:      cfg.Upstream.UserAgent,
				AcceptLanguage: cfg.Upstream.AcceptLanguage,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for i := 0; i < count; i++ {
				if err := enc.Encode(synth.Synthesize()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of identities to print")
	return cmd
}
