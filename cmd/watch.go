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
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/valpere/pas2cs/internal/filename"
	"github.com/valpere/pas2cs/internal/session"
	"github.com/valpere/pas2cs/internal/store"
	"github.com/valpere/pas2cs/internal/tracker"
)

const watchDebounce = 300 * time.Millisecond

var (
	watchInput      string
	watchOutput     string
	watchNoValidate bool
	watchNoCache    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Convert a Pascal file every time it changes",
	Long: `Watch a Pascal file and convert it whenever its content changes.

Saving again while a conversion is running cancels that conversion and
starts a new one. Saves that leave the content unchanged are ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := filepath.Abs(watchInput)
		if err != nil {
			return fmt.Errorf("failed to resolve input path: %w", err)
		}
		output := watchOutput
		if output == "" {
			output = filepath.Join(filepath.Dir(input), filename.Suggest(input))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(appConfig, !watchNoValidate, appLogger)
		if err != nil {
			return err
		}

		db, err := openHistory(appConfig, watchNoCache)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		w := &fileWatcher{
			pipeline: p,
			db:       db,
			input:    input,
			output:   output,
			validate: !watchNoValidate,
		}
		return w.run(ctx)
	},
}

// fileWatcher converts one file on change. At most one conversion is live;
// a newer change cancels the one in flight.
type fileWatcher struct {
	pipeline *pipeline
	db       *store.Store
	input    string
	output   string
	validate bool

	session session.Session
	tracker tracker.Tracker
	wg      sync.WaitGroup
}

func (w *fileWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(w.input)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.input), err)
	}

	defer func() {
		w.session.Cancel()
		w.wg.Wait()
	}()

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", w.input)
	w.trigger(ctx)

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.input {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(watchDebounce)
		case <-debounce.C:
			w.trigger(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher error: %w", err)
		}
	}
}

// trigger starts a conversion when the file content differs from the last
// converted content.
func (w *fileWatcher) trigger(ctx context.Context) {
	data, err := os.ReadFile(w.input)
	if err != nil {
		w.pipeline.logger.Warn("failed to read input", "file", w.input, "error", err)
		return
	}
	source := string(data)

	switch w.tracker.Action(source) {
	case tracker.ActionNone:
		w.pipeline.logger.Debug("input is empty, waiting for content")
		return
	case tracker.ActionRefresh:
		w.pipeline.logger.Debug("content unchanged, skipping")
		return
	}

	opCtx, done := w.session.Begin(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer done()
		w.convert(opCtx, source)
	}()
}

func (w *fileWatcher) convert(ctx context.Context, source string) {
	log := w.pipeline.logger.With("file", filepath.Base(w.input))

	conv, err := convertSource(ctx, w.pipeline, w.db, filepath.Base(w.input), source, convertOptions{
		validate: w.validate,
	})
	if err != nil {
		log.Error("conversion failed", "error", err)
		return
	}
	if conv.Cancelled {
		log.Debug("conversion superseded")
		return
	}
	if !conv.Converted {
		log.Error(errConversionFailed.Error())
		return
	}
	if err := writeOutput(w.output, conv.Code); err != nil {
		log.Error("failed to write output", "error", err)
		return
	}

	w.tracker.MarkConverted(source)
	log.Info("converted", "output", w.output, "validated", conv.Validated, "cached", conv.Cached)
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchInput, "input", "i", "", "Pascal source file to watch (required)")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "Output C# file (default: <input>.cs next to the input)")
	watchCmd.Flags().BoolVar(&watchNoValidate, "no-validate", false, "Skip the review pass")
	watchCmd.Flags().BoolVar(&watchNoCache, "no-cache", false, "Do not read or write conversion history")
	watchCmd.Flags().String("db", "", "Conversion history database (default from config)")

	watchCmd.MarkFlagRequired("input")
}
