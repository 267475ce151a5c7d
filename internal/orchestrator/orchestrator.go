package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/valpere/pas2cs/internal/translator"
	"github.com/valpere/pas2cs/internal/validator"
)

// ConversionFailedMessage is returned in place of code when the conversion
// stage produced nothing.
const ConversionFailedMessage = "Conversion failed."

type OrchestratorConfig struct {
	// StageTimeout bounds each network stage. Zero leaves it to the HTTP client.
	StageTimeout   time.Duration
	SkipValidation bool
}

type OrchestratorResult struct {
	RawCode       string
	Code          string
	Converted     bool
	Cancelled     bool
	Validated     bool
	ValidationErr error
	Latency       time.Duration
}

type Orchestrator struct {
	translator translator.Translator
	validator  validator.Validator
	config     OrchestratorConfig
	logger     *slog.Logger
}

// New wires the two stages. v may be nil, which behaves like SkipValidation.
func New(t translator.Translator, v validator.Validator, config OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if v == nil {
		config.SkipValidation = true
	}
	return &Orchestrator{
		translator: t,
		validator:  v,
		config:     config,
		logger:     logger,
	}
}

// Execute runs conversion and then validation, strictly in sequence and once
// each. Conversion errors are returned; validation errors are recorded in the
// result and the unvalidated code is kept. Cancelling ctx during either stage
// marks the result Cancelled.
func (o *Orchestrator) Execute(ctx context.Context, source string) (*OrchestratorResult, error) {
	start := time.Now()
	result := &OrchestratorResult{}
	defer func() { result.Latency = time.Since(start) }()

	stageCtx, cancel := o.stageContext(ctx)
	raw, err := o.translator.Translate(stageCtx, source)
	cancel()
	if err != nil {
		return nil, err
	}

	if raw == "" {
		result.Cancelled = ctx.Err() != nil
		result.Code = ConversionFailedMessage
		return result, nil
	}
	result.RawCode = raw
	result.Converted = true

	if o.config.SkipValidation {
		result.Code = raw
		return result, nil
	}

	stageCtx, cancel = o.stageContext(ctx)
	fixed, err := o.validator.Review(stageCtx, raw)
	cancel()
	if err != nil && ctx.Err() != nil {
		o.logger.Info("validation cancelled")
		result.Code = raw
		result.Cancelled = true
		return result, nil
	}
	if err != nil {
		o.logger.Warn("validation failed, keeping unvalidated code", "error", err)
		result.Code = raw
		result.ValidationErr = err
		return result, nil
	}

	result.Code = fixed
	result.Validated = true
	return result, nil
}

// TranslateAndValidate is Execute reduced to the resulting text.
func (o *Orchestrator) TranslateAndValidate(ctx context.Context, source string) (string, error) {
	result, err := o.Execute(ctx, source)
	if err != nil {
		return "", err
	}
	return result.Code, nil
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.config.StageTimeout > 0 {
		return context.WithTimeout(ctx, o.config.StageTimeout)
	}
	return context.WithCancel(ctx)
}
