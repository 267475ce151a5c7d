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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/pas2cs/internal"
	"github.com/valpere/pas2cs/internal/config"
	"github.com/valpere/pas2cs/internal/llm"
	"github.com/valpere/pas2cs/internal/orchestrator"
	"github.com/valpere/pas2cs/internal/prompt"
	"github.com/valpere/pas2cs/internal/store"
	"github.com/valpere/pas2cs/internal/translator"
	"github.com/valpere/pas2cs/internal/validator"
)

var errConversionFailed = errors.New(orchestrator.ConversionFailedMessage)

// stageTimeoutMargin keeps each stage deadline past the HTTP client timeout,
// so a slow request surfaces as the client's timeout error.
const stageTimeoutMargin = 5 * time.Second

// pipeline holds the two configured stages. validator is nil when the
// review prompt was not loaded.
type pipeline struct {
	translator   translator.Translator
	validator    validator.Validator
	model        string
	stageTimeout time.Duration
	logger       *slog.Logger
}

// buildPipeline loads the prompts, resolves the API key and wires the
// translation and validation clients to a shared chat client.
func buildPipeline(cfg *config.Config, withValidator bool, log *slog.Logger) (*pipeline, error) {
	systemPrompt, err := prompt.BuildSystemPrompt(cfg.Prompt.TemplatePath(), cfg.Prompt.ExamplesDir())
	if err != nil {
		return nil, fmt.Errorf("failed to build conversion prompt: %w", err)
	}

	apiKey, source := config.ResolveAPIKey(cfg.LLM, config.ExecutableDir())
	switch source {
	case config.SourceMissing:
		log.Warn("no API key found, requests will be rejected", "hint", "set OPENAI_API_KEY or create "+config.KeyFileName)
	default:
		log.Debug("API key resolved", "source", source)
	}

	client := llm.New(cfg.LLM.Client(apiKey), log)
	p := &pipeline{
		translator:   translator.New(client, systemPrompt, log),
		model:        client.Model(),
		stageTimeout: cfg.LLM.Timeout + stageTimeoutMargin,
		logger:       log,
	}

	if withValidator {
		reviewPrompt, err := prompt.LoadValidatorPrompt(cfg.Prompt.ValidatorPath())
		if err != nil {
			return nil, fmt.Errorf("failed to load validation prompt: %w", err)
		}
		p.validator = validator.New(client, reviewPrompt, log)
	}

	return p, nil
}

func (p *pipeline) orchestrator(validate bool) *orchestrator.Orchestrator {
	var v validator.Validator
	if validate && p.validator != nil {
		v = p.validator
	}
	return orchestrator.New(p.translator, v, orchestrator.OrchestratorConfig{
		StageTimeout: p.stageTimeout,
	}, p.logger)
}

// openHistory returns nil when the history is disabled by config or flag.
func openHistory(cfg *config.Config, disabled bool) (*store.Store, error) {
	if disabled || cfg.Store.Disabled {
		return nil, nil
	}
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

type convertOptions struct {
	validate bool
	// force skips the history lookup; the fresh result still replaces the
	// stored one.
	force bool
}

type conversion struct {
	Code          string
	RawCode       string
	Converted     bool
	Cancelled     bool
	Validated     bool
	Cached        bool
	ValidationErr error
}

// convertSource answers from history when possible, otherwise runs the
// pipeline and records a successful result. A validated request is only
// answered by a validated entry. Cancelled runs and failed validations are
// not recorded. db may be nil.
func convertSource(ctx context.Context, p *pipeline, db *store.Store, name, source string, opts convertOptions) (*conversion, error) {
	if db != nil && !opts.force {
		code, found, err := db.GetCachedConversion(ctx, source, opts.validate)
		if err != nil {
			p.logger.Warn("history lookup failed", "error", err)
		}
		if found {
			p.logger.Info("using cached conversion", "source", name)
			return &conversion{Code: code, Converted: true, Cached: true}, nil
		}
	}

	result, err := p.orchestrator(opts.validate).Execute(ctx, source)
	if err != nil {
		return nil, err
	}

	conv := &conversion{
		Code:          result.Code,
		RawCode:       result.RawCode,
		Converted:     result.Converted,
		Cancelled:     result.Cancelled,
		Validated:     result.Validated,
		ValidationErr: result.ValidationErr,
	}
	if result.Cancelled || !result.Converted {
		return conv, nil
	}

	p.logger.Info("conversion finished",
		"source", name,
		"validated", result.Validated,
		"latency", result.Latency.Round(time.Millisecond))

	if db != nil && result.ValidationErr == nil {
		req := internal.ConversionRequest{
			ID:         uuid.New().String(),
			SourceName: name,
			SourceText: source,
			Model:      p.model,
			Timestamp:  time.Now(),
		}
		// Saved even if ctx was cancelled after the result arrived.
		saveCtx := context.WithoutCancel(ctx)
		if err := db.SaveConversion(saveCtx, req, store.Conversion{
			RawCode:   result.RawCode,
			Code:      result.Code,
			Validated: result.Validated,
			Latency:   result.Latency,
		}); err != nil {
			p.logger.Warn("failed to save conversion", "error", err)
		}
	}

	return conv, nil
}

// writeOutput writes code as UTF-8 without a byte order mark.
func writeOutput(path, code string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
