// Package counter asks a hosted multimodal model how many people move through
// the entrance in a clip.
package counter

import (
	"context"
	"fmt"

	"github.com/thehanda/countcam-app/pkg/models"
)

// Request is a single counting job.
type Request struct {
	VideoDataURI string
	Direction    models.Direction
	FileName     string
}

// Result is the validated answer of the model.
type Result struct {
	VisitorCount      int
	CountedDirection  models.Direction
	DirectionMismatch bool
	FinishReason      string
}

// Counter counts visitors in a clip. Implementations make exactly one
// outbound call per invocation and never retry.
type Counter interface {
	Count(ctx context.Context, req Request) (*Result, error)
}

// ModelOutputError means the model answered but gave nothing usable:
// a blocked or empty response, malformed JSON, or fields outside the schema.
type ModelOutputError struct {
	Message      string
	FinishReason string
	Refusal      string
	Raw          string
}

func (e *ModelOutputError) Error() string {
	msg := "model output error: " + e.Message
	if e.FinishReason != "" {
		msg += fmt.Sprintf(" (finish reason %s)", e.FinishReason)
	}
	if e.Refusal != "" {
		msg += fmt.Sprintf(" (refusal %q)", e.Refusal)
	}
	return msg
}

// Details is the diagnostic payload returned to API callers.
func (e *ModelOutputError) Details() map[string]string {
	details := map[string]string{"message": e.Message}
	if e.FinishReason != "" {
		details["finishReason"] = e.FinishReason
	}
	if e.Refusal != "" {
		details["refusal"] = e.Refusal
	}
	return details
}

const maxRawLen = 512

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxRawLen {
		return s
	}
	return string(runes[:maxRawLen]) + "..."
}
