package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/requirements"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
	"github.com/capitalize-ai/field-ops-assistant/pkg/metrics"
)

// ErrMalformedOutput is returned when the model reply is not a valid intent.
var ErrMalformedOutput = errors.New("malformed parser output")

// maxHistoryTurns bounds the history sent with each request.
const maxHistoryTurns = 12

const intentSchema = `{
  "type": "object",
  "required": ["operation"],
  "properties": {
    "operation": {"type": "string", "minLength": 1},
    "data": {"type": ["object", "null"]},
    "missing_fields": {"type": ["array", "null"], "items": {"type": "string"}},
    "error": {"type": ["string", "null"]},
    "warnings": {"type": ["array", "null"], "items": {"type": "string"}},
    "language": {"type": ["string", "null"]},
    "message": {"type": ["string", "null"]},
    "extra_operations": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["operation"],
        "properties": {
          "operation": {"type": "string"},
          "data": {"type": ["object", "null"]}
        }
      }
    }
  }
}`

// ParseRequest is one parser invocation.
type ParseRequest struct {
	Message    string
	SenderName string
	History    []model.Turn

	// Context is prepended by the pipeline when continuing a chain step.
	Context string
}

// Parser turns free text into a structured intent.
type Parser interface {
	Parse(ctx context.Context, req ParseRequest) (model.ParsedIntent, error)
}

// LLMParser implements Parser on top of an LLM Client.
type LLMParser struct {
	client   Client
	model    string
	engine   *requirements.Engine
	schema   *gojsonschema.Schema
	retry    RetryConfig
	language model.Language
	now      func() time.Time
	logger   *logger.Logger
}

// ParserOption configures an LLMParser.
type ParserOption func(*LLMParser)

// WithRetry overrides the retry policy.
func WithRetry(cfg RetryConfig) ParserOption {
	return func(p *LLMParser) { p.retry = cfg }
}

// WithClock overrides the clock used for "today" in the prompt.
func WithClock(now func() time.Time) ParserOption {
	return func(p *LLMParser) { p.now = now }
}

// WithModel pins the model name sent to the provider.
func WithModel(name string) ParserOption {
	return func(p *LLMParser) { p.model = name }
}

// WithDefaultLanguage sets the language assumed when the model omits one.
func WithDefaultLanguage(lang model.Language) ParserOption {
	return func(p *LLMParser) { p.language = lang }
}

// NewParser creates a parser. engine may be nil, in which case the prompt
// omits field lists.
func NewParser(client Client, engine *requirements.Engine, log *logger.Logger, opts ...ParserOption) (*LLMParser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(intentSchema))
	if err != nil {
		return nil, fmt.Errorf("compile intent schema: %w", err)
	}
	p := &LLMParser{
		client:   client,
		engine:   engine,
		schema:   schema,
		retry:    DefaultRetryConfig(),
		language: model.LangTR,
		now:      time.Now,
		logger:   log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse implements Parser.
func (p *LLMParser) Parse(ctx context.Context, req ParseRequest) (model.ParsedIntent, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "llm.parse")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", p.client.Name()))

	start := time.Now()
	resp, err := completeWithRetry(ctx, p.client, p.request(req), p.retry)
	if err != nil {
		metrics.RecordParse(p.client.Name(), "", "error", time.Since(start).Seconds(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return model.ParsedIntent{}, fmt.Errorf("parse message: %w", err)
	}
	metrics.RecordParse(p.client.Name(), resp.Model, "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	intent, err := p.decode(resp.Content)
	if err != nil {
		p.logger.Warn("Parser returned unusable output",
			zap.String("provider", p.client.Name()),
			zap.Int("length", len(resp.Content)),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed output")
		return model.ParsedIntent{}, err
	}

	span.SetAttributes(attribute.String("intent.operation", string(intent.Operation)))
	return intent, nil
}

func (p *LLMParser) request(req ParseRequest) *CompletionRequest {
	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == model.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, ChatMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, ChatMessage{
		Role:    "user",
		Content: UserMessage(req.SenderName, req.Message, req.Context),
	})

	return &CompletionRequest{
		Model:       p.model,
		System:      SystemPrompt(p.engine, p.now()),
		Messages:    messages,
		MaxTokens:   2048,
		Temperature: 0,
	}
}

type rawIntent struct {
	Operation       string           `json:"operation"`
	Data            model.Data       `json:"data"`
	MissingFields   []string         `json:"missing_fields"`
	Error           *string          `json:"error"`
	Warnings        []string         `json:"warnings"`
	Language        *string          `json:"language"`
	Message         *string          `json:"message"`
	ExtraOperations []rawExtraIntent `json:"extra_operations"`
}

type rawExtraIntent struct {
	Operation string     `json:"operation"`
	Data      model.Data `json:"data"`
}

func (p *LLMParser) decode(content string) (model.ParsedIntent, error) {
	if strings.TrimSpace(content) == "" {
		return model.ParsedIntent{}, ErrEmptyResponse
	}
	doc := ExtractJSON(content)
	if doc == "" {
		return model.ParsedIntent{}, fmt.Errorf("%w: no JSON object", ErrMalformedOutput)
	}

	result, err := p.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return model.ParsedIntent{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return model.ParsedIntent{}, fmt.Errorf("%w: %s", ErrMalformedOutput, strings.Join(msgs, "; "))
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return model.ParsedIntent{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	intent := model.ParsedIntent{
		Operation:     model.ParseOperation(raw.Operation),
		Data:          raw.Data,
		MissingFields: raw.MissingFields,
		Warnings:      raw.Warnings,
		Language:      p.language,
	}
	if intent.Data == nil {
		intent.Data = model.Data{}
	}
	if raw.Error != nil {
		intent.Error = *raw.Error
	}
	if raw.Language != nil {
		intent.Language = model.ParseLanguage(strings.ToLower(*raw.Language), p.language)
	}
	if raw.Message != nil {
		intent.Message = *raw.Message
	}
	for _, ex := range raw.ExtraOperations {
		op := model.ParseOperation(ex.Operation)
		if !op.IsWrite() {
			continue
		}
		intent.ExtraOperations = append(intent.ExtraOperations, model.ExtraOperation{Operation: op, Data: ex.Data})
	}
	return intent, nil
}
