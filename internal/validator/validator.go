// Package validator implements the second pass of a conversion: generated C#
// is sent back to the model with a review prompt and the corrected code is
// returned.
//
// A failed review never loses work. Validate hands back the input unchanged
// on any error; callers that need to know about the failure use Review.
package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/valpere/pas2cs/internal/llm"
	"github.com/valpere/pas2cs/internal/postprocess"
)

// ErrEmptyReview is returned when the model answers without any code.
var ErrEmptyReview = errors.New("validation returned no code")

// Validator reviews and fixes generated C# code.
type Validator interface {
	Validate(ctx context.Context, code string) string
	Review(ctx context.Context, code string) (string, error)
}

// Client is the chat-model backed Validator.
type Client struct {
	completer llm.Completer
	prompt    string
	logger    *slog.Logger
}

// New creates a Client using prompt as the system message.
func New(completer llm.Completer, prompt string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		completer: completer,
		prompt:    prompt,
		logger:    logger,
	}
}

func buildUserPrompt(code string) string {
	return "Review and fix the following C# code:\n\n" + code
}

// Validate returns the reviewed code, or code itself when the review fails.
// Blank input returns "" without a request.
func (c *Client) Validate(ctx context.Context, code string) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}

	fixed, err := c.Review(ctx, code)
	if err != nil {
		c.logger.Warn("validation failed, keeping unvalidated code", "error", err)
		return code
	}
	return fixed
}

// Review is Validate without the fallback.
func (c *Client) Review(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", nil
	}

	content, err := c.completer.Complete(ctx, c.prompt, buildUserPrompt(code))
	if err != nil {
		return "", fmt.Errorf("validation request failed: %w", err)
	}

	fixed := postprocess.ExtractField(content, "code")
	if strings.TrimSpace(fixed) == "" {
		return "", ErrEmptyReview
	}
	return fixed, nil
}
