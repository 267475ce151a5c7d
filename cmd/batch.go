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
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/pas2cs/internal/filename"
	"github.com/valpere/pas2cs/internal/store"
)

var (
	batchInputDir   string
	batchOutputDir  string
	batchJobs       int
	batchNoValidate bool
	batchNoCache    bool
	batchForce      bool
)

// pascalExtensions are the source file types picked up by batch.
var pascalExtensions = map[string]bool{
	".pas": true,
	".pp":  true,
	".dpr": true,
	".ps":  true,
}

type batchItem struct {
	Source string
	Output string
}

// collectSources finds every Pascal file under inputDir and maps it to a .cs
// file at the same relative location under outputDir.
func collectSources(inputDir, outputDir string) ([]batchItem, error) {
	var items []batchItem
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !pascalExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		items = append(items, batchItem{
			Source: path,
			Output: filepath.Join(outputDir, filepath.Dir(rel), filename.Suggest(path)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", inputDir, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Source < items[j].Source })
	return items, nil
}

// isUpToDate reports whether output exists and is not older than source.
func isUpToDate(source, output string) bool {
	src, err := os.Stat(source)
	if err != nil {
		return false
	}
	out, err := os.Stat(output)
	if err != nil {
		return false
	}
	return !out.ModTime().Before(src.ModTime())
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Convert every Pascal file in a directory",
	Long: `Convert every .pas, .pp, .dpr and .ps file under a directory, writing the C#
files to the same relative paths under the output directory.

Files whose output is newer than the source are skipped, and sources already
in the conversion history are written from it. Use --force to convert
everything again.

Example:
  pas2cs batch -i ./legacy/src -o ./converted -j 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if filepath.Clean(batchInputDir) == filepath.Clean(batchOutputDir) {
			return fmt.Errorf("input directory and output directory cannot be the same")
		}

		items, err := collectSources(batchInputDir, batchOutputDir)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintf(os.Stderr, "No Pascal files found in %s\n", batchInputDir)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(appConfig, !batchNoValidate, appLogger)
		if err != nil {
			return err
		}

		db, err := openHistory(appConfig, batchNoCache)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		var converted, cached, skipped, failed, done atomic.Int32

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(batchJobs, 1))

		for _, item := range items {
			if !batchForce && isUpToDate(item.Source, item.Output) {
				skipped.Add(1)
				continue
			}

			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				ok, fromHistory := convertBatchItem(gctx, p, db, item)
				switch {
				case !ok:
					failed.Add(1)
				case fromHistory:
					cached.Add(1)
				default:
					converted.Add(1)
				}
				fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", done.Add(1)+skipped.Load(), len(items), item.Source)
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Batch cancelled.")
		}

		fmt.Printf("Converted: %d, from history: %d, up to date: %d, failed: %d\n",
			converted.Load(), cached.Load(), skipped.Load(), failed.Load())
		if failed.Load() > 0 {
			return fmt.Errorf("%d file(s) failed to convert", failed.Load())
		}
		return nil
	},
}

// convertBatchItem converts one file and logs rather than returns errors so
// that one bad file does not stop the batch.
func convertBatchItem(ctx context.Context, p *pipeline, db *store.Store, item batchItem) (ok, fromHistory bool) {
	data, err := os.ReadFile(item.Source)
	if err != nil {
		p.logger.Error("failed to read source", "file", item.Source, "error", err)
		return false, false
	}
	source := string(data)
	if strings.TrimSpace(source) == "" {
		p.logger.Warn("skipping empty source", "file", item.Source)
		return false, false
	}

	conv, err := convertSource(ctx, p, db, filepath.Base(item.Source), source, convertOptions{
		validate: !batchNoValidate,
		force:    batchForce,
	})
	if err != nil {
		p.logger.Error("conversion failed", "file", item.Source, "error", err)
		return false, false
	}
	if conv.Cancelled || !conv.Converted {
		if !conv.Cancelled {
			p.logger.Error("conversion produced no code", "file", item.Source)
		}
		return false, false
	}

	if err := writeOutput(item.Output, conv.Code); err != nil {
		p.logger.Error("failed to write output", "file", item.Output, "error", err)
		return false, false
	}
	return true, conv.Cached
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchInputDir, "input", "i", "", "Directory with Pascal sources (required)")
	batchCmd.Flags().StringVarP(&batchOutputDir, "output", "o", "", "Directory for the C# files (required)")
	batchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", 2, "Files converted concurrently")
	batchCmd.Flags().BoolVar(&batchNoValidate, "no-validate", false, "Skip the review pass")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "Do not read or write conversion history")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "Convert every file even if up to date")
	batchCmd.Flags().String("db", "", "Conversion history database (default from config)")
	batchCmd.Flags().Int("rpm", 0, "Maximum requests per minute, 0 for no limit (default from config)")

	batchCmd.MarkFlagRequired("input")
	batchCmd.MarkFlagRequired("output")
}
