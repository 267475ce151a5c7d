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
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	reviewInput  string
	reviewOutput string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run only the review pass on an existing C# file",
	Long: `Send a C# file through the review prompt and print or write the fixed code.

If the review request fails the input is returned unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(reviewInput)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		code := string(data)
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("input file %s is empty", reviewInput)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(appConfig, true, appLogger)
		if err != nil {
			return err
		}

		fixed := p.validator.Validate(ctx, code)
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Review cancelled.")
			return nil
		}

		if reviewOutput == "" {
			fmt.Fprint(cmd.OutOrStdout(), fixed)
			return nil
		}
		if err := writeOutput(reviewOutput, fixed); err != nil {
			return err
		}
		fmt.Printf("Reviewed %s to %s\n", reviewInput, reviewOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringVarP(&reviewInput, "input", "i", "", "C# file to review (required)")
	reviewCmd.Flags().StringVarP(&reviewOutput, "output", "o", "", "Write the result here instead of stdout")

	reviewCmd.MarkFlagRequired("input")
}
