package counter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/models"
)

// Options configures an OpenAICounter.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OpenAICounter talks to any OpenAI-compatible Chat Completions endpoint
// that accepts inline file parts.
type OpenAICounter struct {
	client openai.Client
	model  string
	log    *zap.Logger
}

// NewOpenAI builds a counter. Retries are disabled so one Count call is
// exactly one request.
func NewOpenAI(opts Options, log *zap.Logger) (*OpenAICounter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("model API key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("model name is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if base := normalizeBaseURL(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &OpenAICounter{
		client: openai.NewClient(reqOpts...),
		model:  opts.Model,
		log:    log,
	}, nil
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/"
}

// Count sends the clip and the counting policy in a single completion call.
func (c *OpenAICounter) Count(ctx context.Context, req Request) (*Result, error) {
	if _, ok := models.ParseDirection(string(req.Direction)); !ok {
		return nil, fmt.Errorf("unknown direction %q", req.Direction)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(Prompt(req.Direction)),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(userInstruction(req.FileName, req.Direction)),
				openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
					FileData: openai.String(req.VideoDataURI),
					Filename: openai.String(fileNameOrDefault(req.FileName)),
				}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "visitor_count",
					Schema: responseSchema(),
					Strict: openai.Bool(true),
				},
			},
		},
		Temperature: openai.Float(0),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ModelOutputError{Message: "response contained no choices"}
	}

	choice := resp.Choices[0]
	finish := string(choice.FinishReason)
	if choice.Message.Refusal != "" || finish == "content_filter" {
		return nil, &ModelOutputError{
			Message:      "response was blocked",
			FinishReason: finish,
			Refusal:      choice.Message.Refusal,
			Raw:          truncate(choice.Message.Content),
		}
	}

	count, dir, err := parseOutput(choice.Message.Content)
	if err != nil {
		var outErr *ModelOutputError
		if errors.As(err, &outErr) {
			outErr.FinishReason = finish
		}
		return nil, err
	}

	result := &Result{
		VisitorCount:     count,
		CountedDirection: dir,
		FinishReason:     finish,
	}
	if dir != req.Direction {
		result.DirectionMismatch = true
		c.log.Warn("model counted a different direction than requested",
			zap.String("file", req.FileName),
			zap.String("requested", string(req.Direction)),
			zap.String("counted", string(dir)),
		)
	}
	return result, nil
}

func fileNameOrDefault(name string) string {
	if name == "" {
		return "clip"
	}
	return name
}
