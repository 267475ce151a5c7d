// Package translator converts Pascal source into C# through a chat model.
package translator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/pas2cs/internal/llm"
	"github.com/valpere/pas2cs/internal/postprocess"
)

// ErrEmptySource is returned before any network activity when the source is
// empty or whitespace.
var ErrEmptySource = errors.New("pascal source is empty")

// CodeField is the JSON field the model is asked to put generated code in.
const CodeField = "code"

// Translator is the first stage of a conversion.
type Translator interface {
	Translate(ctx context.Context, source string) (string, error)
}

// Client sends Pascal source together with the conversion system prompt.
type Client struct {
	completer    llm.Completer
	systemPrompt string
	logger       *slog.Logger
}

func New(completer llm.Completer, systemPrompt string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		completer:    completer,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// BuildUserPrompt wraps the source in the tag the system prompt refers to.
func BuildUserPrompt(source string) string {
	return "<source_code>\n" + source + "\n</source_code>"
}

// Translate returns the generated C# code. A cancelled ctx yields ("", nil);
// any other failure, an expired deadline included, is returned to the caller.
func (c *Client) Translate(ctx context.Context, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrEmptySource
	}

	start := time.Now()
	content, err := c.completer.Complete(ctx, c.systemPrompt, BuildUserPrompt(source))
	if err != nil {
		if cancelled(ctx, err) {
			c.logger.Info("conversion cancelled")
			return "", nil
		}
		return "", fmt.Errorf("conversion request failed: %w", err)
	}

	code := postprocess.ExtractField(content, CodeField)
	c.logger.Debug("conversion finished",
		"source_len", len(source),
		"code_len", len(code),
		"duration_ms", time.Since(start).Milliseconds())
	return code, nil
}

// cancelled reports a caller cancellation as opposed to a timeout.
func cancelled(ctx context.Context, err error) bool {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Is(ctxErr, context.Canceled)
	}
	return errors.Is(err, context.Canceled)
}
