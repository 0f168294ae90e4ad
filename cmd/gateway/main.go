package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aigen",
		Short: "OpenAI-compatible gateway for ai-image-generator.co",
		Long: "aigen exposes the ai-image-generator.co flux-schnell backend through the " +
			"OpenAI chat completions, images and models endpoints.",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	var configPath string
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file (optional)")

	root.AddCommand(
		newServeCmd(&configPath),
		newIdentityCmd(&configPath),
		newVersionCmd(),
	)
	return root
}
