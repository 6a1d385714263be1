package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/FL0WL0W/ESPRecovery/internal/config"
	"github.com/FL0WL0W/ESPRecovery/pkg/recovery"
)

var (
	// Global flags
	cfgPath   string
	imagePath string
	verbose   bool
	quiet     bool
	jsonOut   bool
	noColor   bool
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

var rootCmd = &cobra.Command{
	Use:   "recoveryctl",
	Short: "Inspect and manage flash recovery images",
	Long: `recoveryctl operates on flash images carrying a partition table:
it streams application images into regions through a differential writer,
selects the boot target, and edits the key-value and file store regions.`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&imagePath, "image", "i", "", "Flash image path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if imagePath != "" {
		cfg.Image = imagePath
	}
	return cfg, nil
}

// openSystem assembles the system for one command invocation. The returned
// closer syncs and releases the image.
func openSystem() (*recovery.System, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	printVerbose("Opening image: %s\n", cfg.Image)
	sys, err := recovery.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open image %s: %w", cfg.Image, err)
	}
	return sys, func() {
		if err := sys.Close(); err != nil {
			printError("close image: %v\n", err)
		}
	}, nil
}

// Helper functions for output

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "Error: "+format, args...)
}

func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		dimColor.Fprintf(os.Stdout, format, args...)
	}
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		successColor.Printf("✓ "+format, args...)
	}
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
