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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/pas2cs/internal/prompt"
)

var promptShowValidator bool

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Inspect the prompts sent to the model",
	Long: `Show the assembled conversion prompt and check the few-shot example files.

The conversion prompt is the template with every valid example injected
into its <prompt_examples> region.`,
}

var promptShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the assembled conversion prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		if promptShowValidator {
			text, err := prompt.LoadValidatorPrompt(appConfig.Prompt.ValidatorPath())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		}

		text, err := prompt.BuildSystemPrompt(appConfig.Prompt.TemplatePath(), appConfig.Prompt.ExamplesDir())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

var promptExamplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "List example files and whether they are used",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := appConfig.Prompt.ExamplesDir()
		files, err := prompt.ScanExamples(dir)
		if err != nil {
			return fmt.Errorf("failed to scan examples: %w", err)
		}

		if len(files) == 0 {
			fmt.Printf("No example files in %s.\n", dir)
			return nil
		}

		loaded := 0
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tSIZE\tPATH")
		for _, f := range files {
			if f.Status == prompt.StatusLoaded {
				loaded++
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", f.Status, len(f.Block), f.Path)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d of %d example files will be injected.\n", loaded, len(files))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)

	promptCmd.PersistentFlags().String("examples", "", "Examples directory (default from config)")
	promptShowCmd.Flags().BoolVar(&promptShowValidator, "validator", false, "Print the review prompt instead")

	promptCmd.AddCommand(promptShowCmd)
	promptCmd.AddCommand(promptExamplesCmd)
}
