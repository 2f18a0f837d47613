// Package service runs the conversational pipeline: it turns inbound chat
// events into validated, confirmed writes against the record store.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/audit"
	"github.com/capitalize-ai/field-ops-assistant/internal/dedup"
	"github.com/capitalize-ai/field-ops-assistant/internal/llm"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/requirements"
	"github.com/capitalize-ai/field-ops-assistant/internal/resolver"
	"github.com/capitalize-ai/field-ops-assistant/internal/state"
	"github.com/capitalize-ai/field-ops-assistant/internal/store"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
	"github.com/capitalize-ai/field-ops-assistant/pkg/metrics"
)

// ErrInvalidEvent is returned for events without a conversation or user.
var ErrInvalidEvent = errors.New("event requires conversation_id and user_id")

// maxHistory bounds the parse history kept per conversation.
const maxHistory = 20

// Executor performs confirmed writes.
type Executor interface {
	Execute(ctx context.Context, req store.WriteRequest) (model.WriteResult, error)
}

// EntityDirectory lists the resolvable sites.
type EntityDirectory interface {
	Entities(ctx context.Context) ([]model.CanonicalEntity, error)
	Invalidate()
}

// QueryReader answers read-only questions.
type QueryReader interface {
	ReadSiteSummary(ctx context.Context, siteID string) (store.SiteSummary, error)
	ReadOpenIssues(ctx context.Context, siteID string) ([]store.Row, error)
	FindOpenTicket(ctx context.Context, siteID string) (string, error)
	ReadStock(ctx context.Context) ([]store.Row, error)
}

// Deps are the collaborators of the pipeline.
type Deps struct {
	Dedup        dedup.Deduplicator
	States       state.Store
	Parser       llm.Parser
	Directory    EntityDirectory
	Resolver     *resolver.Resolver
	Requirements *requirements.Engine
	Executor     Executor
	Queries      QueryReader
	Audit        audit.Sink
}

// Options tune pipeline behavior.
type Options struct {
	DefaultLanguage model.Language
	StaleAfter      time.Duration
	Now             func() time.Time
}

// Pipeline is the conversational state machine.
type Pipeline struct {
	deps       Deps
	language   model.Language
	staleAfter time.Duration
	now        func() time.Time
	logger     *logger.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(deps Deps, opts Options, log *logger.Logger) *Pipeline {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = model.LangTR
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = requirements.DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		deps:       deps,
		language:   opts.DefaultLanguage,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
		logger:     log,
	}
}

// transition is the result of one phase handler.
type transition struct {
	// next is persisted unless keep is set; nil deletes the state.
	next    *model.ConversationState
	keep    bool
	replies []model.Reply
	outcome string
}

func keepState(outcome string, replies ...model.Reply) transition {
	return transition{keep: true, replies: replies, outcome: outcome}
}

func clearState(outcome string, replies ...model.Reply) transition {
	return transition{replies: replies, outcome: outcome}
}

func saveState(st *model.ConversationState, outcome string, replies ...model.Reply) transition {
	return transition{next: st, replies: replies, outcome: outcome}
}

// apply persists the transition. Store failures are logged; the replies still go out.
func (p *Pipeline) apply(ctx context.Context, log *logger.Logger, conversationID string, t transition) {
	switch {
	case t.keep:
		return
	case t.next == nil:
		if err := p.deps.States.Delete(ctx, conversationID); err != nil {
			log.Error("Failed to clear conversation state", zap.Error(err))
		}
	default:
		t.next.UpdatedAt = p.now()
		if t.next.CreatedAt.IsZero() {
			t.next.CreatedAt = t.next.UpdatedAt
		}
		if err := p.deps.States.Put(ctx, t.next); err != nil {
			log.Error("Failed to persist conversation state", zap.Error(err))
			return
		}
		log.Debug("State persisted",
			zap.String("phase", string(t.next.Phase)),
			zap.String("operation", string(t.next.Operation)),
			zap.String("revision", t.next.Revision),
		)
	}
}

// loadState returns the live state or nil.
func (p *Pipeline) loadState(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	st, err := p.deps.States.Get(ctx, conversationID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil
	}
	return st, err
}

func (p *Pipeline) duplicate(ctx context.Context, eventID string) bool {
	if eventID == "" || p.deps.Dedup == nil {
		return false
	}
	if p.deps.Dedup.IsDuplicate(ctx, eventID) {
		metrics.DuplicatesDropped.Inc()
		return true
	}
	return false
}

func newRevision() string {
	return uuid.NewString()
}

// remember appends the user turn and a summary of the parsed intent.
func remember(st *model.ConversationState, message string, intent model.ParsedIntent) {
	summary, err := json.Marshal(struct {
		Operation model.Operation `json:"operation"`
		Data      model.Data      `json:"data,omitempty"`
	}{intent.Operation, intent.Data})
	if err != nil {
		summary = []byte(`{}`)
	}
	st.History = append(st.History,
		model.Turn{Role: model.RoleUser, Content: message},
		model.Turn{Role: model.RoleAssistant, Content: string(summary)},
	)
	if len(st.History) > maxHistory {
		st.History = append([]model.Turn(nil), st.History[len(st.History)-maxHistory:]...)
	}
}

func (p *Pipeline) recordAudit(ctx context.Context, rec model.AuditRecord) {
	if p.deps.Audit == nil {
		return
	}
	_ = p.deps.Audit.Record(ctx, rec)
}

// State returns the live state of a conversation for inspection.
func (p *Pipeline) State(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	return p.deps.States.Get(ctx, conversationID)
}

// Reset discards the state of a conversation.
func (p *Pipeline) Reset(ctx context.Context, conversationID string) error {
	return p.deps.States.Delete(ctx, conversationID)
}
