package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	hdriPath   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Scene editor with a real-time and a path-traced view",
	Long: `studio loads glTF and OBJ models into a lit scene with an HDRI environment.
The view command opens an interactive window; capture renders a screenshot
offscreen and writes it as PNG.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&hdriPath, "hdri", "", "Default HDRI, overriding environment.hdri_path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overriding log.level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
