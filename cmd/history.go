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

	"github.com/valpere/pas2cs/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the conversion history",
	Long: `List, inspect, invalidate and clear the SQLite conversion history.

A source found in history is not sent to the model again; invalidate or
delete its entry to force a fresh conversion.`,
}

func openHistoryForCommand() (*store.Store, error) {
	if appConfig.Store.Disabled {
		return nil, fmt.Errorf("conversion history is disabled (store.disabled)")
	}
	return openHistory(appConfig, false)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversion history entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryForCommand()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.List(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries in conversion history.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tMODEL\tVALIDATED\tUSED\tLATENCY\tLAST USED\tINVALID")
		for _, e := range entries {
			name := e.SourceName
			if len(name) > 32 {
				name = name[:29] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%dms\t%s\t%v\n",
				e.ID, name, e.Model, e.Validated, e.UsageCount, e.LatencyMs,
				e.LastUsed.Format("2006-01-02 15:04"), e.Invalidated)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the stored C# code of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryForCommand()
		if err != nil {
			return err
		}
		defer db.Close()

		entry, err := db.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load entry: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), entry.Code)
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show conversion history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryForCommand()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total entries:     %d\n", stats.TotalEntries)
		fmt.Printf("Active entries:    %d\n", stats.ActiveEntries)
		fmt.Printf("Invalid entries:   %d\n", stats.InvalidEntries)
		fmt.Printf("Validated entries: %d\n", stats.ValidatedEntries)
		fmt.Printf("Total usage:       %d\n", stats.TotalUsage)
		return nil
	},
}

var historyInvalidateCmd = &cobra.Command{
	Use:   "invalidate <id>",
	Short: "Mark an entry stale so its source is converted again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryForCommand()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Invalidate(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to invalidate entry: %w", err)
		}
		fmt.Printf("Invalidated entry: %s\n", args[0])
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversion history entry by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryForCommand()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		fmt.Printf("Deleted entry: %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all entries from conversion history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryForCommand()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Clear(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Cleared %d entries from conversion history.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.PersistentFlags().String("db", "", "Conversion history database (default from config)")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show at most n entries (0 for all)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyInvalidateCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}
