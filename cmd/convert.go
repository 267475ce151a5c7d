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
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/pas2cs/internal/filename"
)

var (
	convertInput      string
	convertOutput     string
	convertStdout     bool
	convertNoValidate bool
	convertNoCache    bool
	convertForce      bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a Pascal source file to C#",
	Long: `Convert a single Delphi/Pascal file to C#.

The output defaults to the input name with a .cs extension, next to the
input. A previous conversion of the same source is reused from history
unless --force or --no-cache is given.

Press Ctrl-C to cancel an in-flight conversion; nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(convertInput)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		source := string(data)
		if strings.TrimSpace(source) == "" {
			return fmt.Errorf("input file %s is empty", convertInput)
		}

		outPath := convertOutput
		if outPath == "" && !convertStdout {
			outPath = filepath.Join(filepath.Dir(convertInput), filename.Suggest(convertInput))
		}
		if outPath != "" && filepath.Clean(outPath) == filepath.Clean(convertInput) {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(appConfig, !convertNoValidate, appLogger)
		if err != nil {
			return err
		}

		db, err := openHistory(appConfig, convertNoCache)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		fmt.Fprintf(os.Stderr, "Converting %s...\n", convertInput)
		conv, err := convertSource(ctx, p, db, filepath.Base(convertInput), source, convertOptions{
			validate: !convertNoValidate,
			force:    convertForce,
		})
		if err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}
		if conv.Cancelled {
			fmt.Fprintln(os.Stderr, "Conversion cancelled.")
			return nil
		}
		if !conv.Converted {
			return errConversionFailed
		}
		if conv.ValidationErr != nil {
			fmt.Fprintf(os.Stderr, "Validation failed (%v), writing unvalidated code\n", conv.ValidationErr)
		}

		if convertStdout {
			fmt.Fprint(cmd.OutOrStdout(), conv.Code)
			return nil
		}
		if err := writeOutput(outPath, conv.Code); err != nil {
			return err
		}

		switch {
		case conv.Cached:
			fmt.Printf("Successfully converted %s to %s (from history)\n", convertInput, outPath)
		case conv.Validated:
			fmt.Printf("Successfully converted and validated %s to %s\n", convertInput, outPath)
		default:
			fmt.Printf("Successfully converted %s to %s\n", convertInput, outPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertInput, "input", "i", "", "Pascal source file to convert (required)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Output C# file (default: <input>.cs next to the input)")
	convertCmd.Flags().BoolVar(&convertStdout, "stdout", false, "Print the result instead of writing a file")
	convertCmd.Flags().BoolVar(&convertNoValidate, "no-validate", false, "Skip the review pass")
	convertCmd.Flags().BoolVar(&convertNoCache, "no-cache", false, "Do not read or write conversion history")
	convertCmd.Flags().BoolVar(&convertForce, "force", false, "Convert again even if history has this source")
	convertCmd.Flags().String("db", "", "Conversion history database (default from config)")
	convertCmd.Flags().Duration("timeout", 0, "Per-request timeout (default from config)")
	convertCmd.Flags().Int("rpm", 0, "Maximum requests per minute, 0 for no limit (default from config)")

	convertCmd.MarkFlagRequired("input")
}
