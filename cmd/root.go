/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/pas2cs/internal/config"
	"github.com/valpere/pas2cs/internal/logger"
)

var version = "0.1.0"

var (
	cfgFile   string
	debugLog  bool
	appViper  *viper.Viper
	appConfig *config.Config
	appLogger = logger.Nop()
)

// configFlags maps command-line flags to the config keys they override.
// Flags absent from the running command are ignored.
var configFlags = map[string]string{
	"model":      "llm.model",
	"base-url":   "llm.base_url",
	"timeout":    "llm.timeout",
	"rpm":        "llm.requests_per_minute",
	"prompt-dir": "prompt.dir",
	"examples":   "prompt.examples",
	"db":         "store.path",
	"listen":     "serve.listen",
	"log-format": "log.format",
}

var rootCmd = &cobra.Command{
	Use:   "pas2cs",
	Short: "Convert Delphi/Pascal source to C# with an LLM",
	Long: `A CLI application that converts Delphi/Pascal source code to C# using an
OpenAI-compatible chat completions API.

Each conversion runs two passes: the Pascal source is converted with a
prompt built from a template and few-shot examples, then the generated C#
is sent back for a review that fixes compile errors.

Use "pas2cs convert --help" for conversion options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.InitViper(cfgFile)
		if err != nil {
			return err
		}

		for name, key := range configFlags {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}

		cfg, err := config.FromViper(v)
		if err != nil {
			return err
		}
		if debugLog {
			cfg.Log.Level = "debug"
		}

		appViper = v
		appConfig = cfg
		appLogger = logger.New(
			logger.WithLevel(logger.ParseLevel(cfg.Log.Level)),
			logger.WithJSON(cfg.Log.Format == "json"),
		)
		slog.SetDefault(appLogger)

		if used := v.ConfigFileUsed(); used != "" {
			appLogger.Debug("config loaded", "file", used)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./pas2cs.yaml or ~/.config/pas2cs/pas2cs.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().String("model", "", "Chat model (default from config)")
	rootCmd.PersistentFlags().String("base-url", "", "OpenAI-compatible API base URL (default from config)")
	rootCmd.PersistentFlags().String("prompt-dir", "", "Directory holding the prompt files (default: Prompt next to the executable)")
}
