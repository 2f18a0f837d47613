package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/requirements"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

type fakeClient struct {
	replies []string
	errs    []error
	calls   []*CompletionRequest
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	var content string
	if i < len(f.replies) {
		content = f.replies[i]
	}
	return &CompletionResponse{Content: content, Model: "fake-1", TokensIn: 10, TokensOut: 5}, nil
}

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestParser(t *testing.T, client Client) *LLMParser {
	t.Helper()
	engine, err := requirements.Default()
	require.NoError(t, err)
	p, err := NewParser(client, engine, logger.NewNop(),
		WithClock(func() time.Time { return fixedNow }),
		WithRetry(RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 1}),
	)
	require.NoError(t, err)
	return p
}

func TestParse_FencedReply(t *testing.T) {
	client := &fakeClient{replies: []string{"Here you go:\n```json\n" + `{
		"operation": "log_support",
		"data": {"site_id": "Migros", "status": "Open", "qty": 2},
		"missing_fields": ["type"],
		"language": "tr",
		"extra_operations": [{"operation": "update_hardware", "data": {"device_type": "Tag"}}, {"operation": "query"}],
	}` + "\n```"}}
	p := newTestParser(t, client)

	intent, err := p.Parse(context.Background(), ParseRequest{
		Message:    "Migros'a gittim, 2 tag bozuk",
		SenderName: "Ayşe",
		History: []model.Turn{
			{Role: model.RoleUser, Content: "merhaba"},
			{Role: model.RoleAssistant, Content: `{"operation":"none"}`},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, model.OpLogSupport, intent.Operation)
	assert.Equal(t, "Migros", intent.Data.String("site_id"))
	assert.Equal(t, float64(2), intent.Data["qty"])
	assert.Equal(t, []string{"type"}, intent.MissingFields)
	assert.Equal(t, model.LangTR, intent.Language)
	require.Len(t, intent.ExtraOperations, 1, "non-write extras are dropped")
	assert.Equal(t, model.OpUpdateHardware, intent.ExtraOperations[0].Operation)

	require.Len(t, client.calls, 1)
	req := client.calls[0]
	assert.Contains(t, req.System, "Today is 2026-03-14")
	assert.Contains(t, req.System, "issue_summary")
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.True(t, strings.HasPrefix(req.Messages[2].Content, "Sender: Ayşe\n"))
}

func TestParse_ErrorAndLanguage(t *testing.T) {
	client := &fakeClient{replies: []string{`{"operation": "log_support", "data": {"received_date": "2026-03-15"}, "error": "future_date", "language": "EN"}`}}
	p := newTestParser(t, client)

	intent, err := p.Parse(context.Background(), ParseRequest{Message: "visited tomorrow"})
	require.NoError(t, err)
	assert.Equal(t, model.ParseErrorFutureDate, intent.Error)
	assert.Equal(t, model.LangEN, intent.Language)
}

func TestParse_UnknownOperationBecomesError(t *testing.T) {
	client := &fakeClient{replies: []string{`{"operation": "delete_everything"}`}}
	p := newTestParser(t, client)

	intent, err := p.Parse(context.Background(), ParseRequest{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.OpError, intent.Operation)
	assert.NotNil(t, intent.Data)
}

func TestParse_MalformedOutput(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  error
	}{
		{"empty", "  ", ErrEmptyResponse},
		{"prose", "Sorry, I cannot help with that.", ErrMalformedOutput},
		{"missing operation", `{"data": {}}`, ErrMalformedOutput},
		{"wrong type", `{"operation": "log_support", "data": "site"}`, ErrMalformedOutput},
		{"broken json", `{"operation": "log_support", "data": {"a": }`, ErrMalformedOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser(t, &fakeClient{replies: []string{tt.reply}})
			_, err := p.Parse(context.Background(), ParseRequest{Message: "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_RetriesTransientErrors(t *testing.T) {
	client := &fakeClient{
		errs:    []error{NewTransientError(errors.New("503")), nil},
		replies: []string{"", `{"operation": "help"}`},
	}
	p := newTestParser(t, client)

	intent, err := p.Parse(context.Background(), ParseRequest{Message: "ne yapabilirsin"})
	require.NoError(t, err)
	assert.Equal(t, model.OpHelp, intent.Operation)
	assert.Len(t, client.calls, 2)
}

func TestParse_FatalErrorsAreNotRetried(t *testing.T) {
	client := &fakeClient{errs: []error{NewFatalError(errors.New("401"))}}
	p := newTestParser(t, client)

	_, err := p.Parse(context.Background(), ParseRequest{Message: "x"})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Len(t, client.calls, 1)
}

func TestParse_TrimsHistory(t *testing.T) {
	history := make([]model.Turn, 30)
	for i := range history {
		history[i] = model.Turn{Role: model.RoleUser, Content: "turn"}
	}
	client := &fakeClient{replies: []string{`{"operation": "none"}`}}
	p := newTestParser(t, client)

	_, err := p.Parse(context.Background(), ParseRequest{Message: "x", History: history})
	require.NoError(t, err)
	assert.Len(t, client.calls[0].Messages, maxHistoryTurns+1)
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{BackoffBase: 100 * time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, cfg.Backoff(3))
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, ExtractJSON("```json\n{\"a\": 1,}\n```"))
	assert.Equal(t, `{"a": [1]}`, ExtractJSON(`ok {"a": [1,]} done`))
	assert.Empty(t, ExtractJSON("no json here"))
}
