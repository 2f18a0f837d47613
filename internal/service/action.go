package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/audit"
	"github.com/capitalize-ai/field-ops-assistant/internal/chain"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/state"
	"github.com/capitalize-ai/field-ops-assistant/internal/store"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
	"github.com/capitalize-ai/field-ops-assistant/pkg/metrics"
)

var (
	errNothingPending = errors.New("nothing pending for this action")
	errStaleRevision  = errors.New("action targets an older revision")
)

// HandleAction applies a button click. The pending state is claimed
// atomically, so a second click on the same card finds nothing to act on.
func (p *Pipeline) HandleAction(ctx context.Context, act model.InboundAction) (*model.HandleResponse, error) {
	if act.ConversationID == "" || act.UserID == "" {
		return nil, ErrInvalidEvent
	}

	ctx, span := otel.Tracer("service").Start(ctx, "pipeline.handle_action")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation_id", act.ConversationID),
		attribute.String("action", string(act.Action)),
	)

	log := p.logger.WithConversation(logger.CorrelationID(ctx), act.ConversationID, act.UserID)

	if p.duplicate(ctx, act.EventID) {
		log.Debug("Duplicate action dropped", zap.String("event_id", act.EventID))
		metrics.RecordEvent("action", "duplicate")
		return &model.HandleResponse{Duplicate: true, Replies: []model.Reply{}}, nil
	}

	st, err := p.deps.States.Claim(ctx, act.ConversationID, func(st *model.ConversationState) error {
		return claimable(st, act)
	})

	var tr transition
	switch {
	case err == nil:
		tr = p.act(ctx, log, st, act.Action)
	case errors.Is(err, state.ErrNotFound), errors.Is(err, errNothingPending):
		tr = keepState("nothing_pending", model.TextReply(say(p.language, msgNothingPending)))
	case errors.Is(err, state.ErrNotOwner):
		tr = p.notOwner(ctx, act.ConversationID)
	case errors.Is(err, errStaleRevision), errors.Is(err, state.ErrConflict):
		log.Info("Stale action ignored", zap.String("revision", act.Revision))
		tr = keepState("stale")
	default:
		log.Error("Failed to claim conversation state", zap.Error(err))
		tr = keepState("state_error", model.TextReply(say(p.language, msgGenericError)))
	}

	p.apply(ctx, log, act.ConversationID, tr)
	metrics.RecordEvent("action", tr.outcome)
	span.SetAttributes(attribute.String("outcome", tr.outcome))
	log.Info("Action handled", zap.String("action", string(act.Action)), zap.String("outcome", tr.outcome))

	replies := tr.replies
	if replies == nil {
		replies = []model.Reply{}
	}
	return &model.HandleResponse{Replies: replies}, nil
}

// claimable decides whether act may take st.
func claimable(st *model.ConversationState, act model.InboundAction) error {
	if st.InitiatingUser != act.UserID {
		return state.ErrNotOwner
	}
	if act.Revision != "" && act.Revision != st.Revision {
		return errStaleRevision
	}
	switch act.Action {
	case model.ActionConfirm:
		if st.Phase != model.PhaseAwaitingConfirmation {
			return errNothingPending
		}
	case model.ActionSkip:
		if !skippable(st) {
			return errNothingPending
		}
	case model.ActionCancel:
		if st.Phase == model.PhaseIdle {
			return errNothingPending
		}
	default:
		return errNothingPending
	}
	return nil
}

func (p *Pipeline) notOwner(ctx context.Context, conversationID string) transition {
	lang, owner := p.language, ""
	if st, err := p.loadState(ctx, conversationID); err == nil && st != nil {
		lang = st.Language
		owner = st.SenderName
		if owner == "" {
			owner = st.InitiatingUser
		}
	}
	return keepState("not_owner", model.TextReply(say(lang, msgNotOwner, owner)))
}

func (p *Pipeline) act(ctx context.Context, log *logger.Logger, st *model.ConversationState, action model.ActionKind) transition {
	switch action {
	case model.ActionConfirm:
		return p.confirm(ctx, log, st)
	case model.ActionSkip:
		return p.skip(ctx, log, st)
	default:
		return p.cancel(ctx, st)
	}
}

// confirm executes the pending write and moves a chain to its next step.
func (p *Pipeline) confirm(ctx context.Context, log *logger.Logger, st *model.ConversationState) transition {
	lang := st.Language
	info, _ := st.Operation.Info()
	entityID := ""
	if info.EntityField != "" {
		entityID = st.Data.String(info.EntityField)
	}

	res, err := p.deps.Executor.Execute(ctx, store.WriteRequest{
		Operation: st.Operation,
		Data:      st.Data,
		User:      st.InitiatingUser,
	})
	if err != nil {
		log.Error("Write failed",
			zap.String("operation", string(st.Operation)),
			zap.Error(err),
		)
		metrics.RecordWrite(string(st.Operation), string(model.AuditFailed))
		p.recordAudit(ctx, audit.NewRecord(p.now(), st.InitiatingUser, model.AuditFailed, info.Collection,
			entityID, operationTitle(st.Operation, model.LangEN)+": "+err.Error(), st.RawMessage, st.ConversationID))
		return clearState("write_failed", model.TextReply(say(lang, msgWriteFailed)))
	}

	metrics.RecordWrite(string(st.Operation), string(info.Audit))
	p.recordAudit(ctx, audit.NewRecord(p.now(), st.InitiatingUser, info.Audit, res.Collection,
		res.EntityID, summarize(st, res), st.RawMessage, st.ConversationID))
	if st.Operation == model.OpCreateSite || st.Operation == model.OpUpdateSite {
		p.deps.Directory.Invalidate()
	}

	replies := []model.Reply{model.TextReply(say(lang, msgSaved, operationTitle(st.Operation, lang), res.RecordKey))}
	if st.Chain == nil {
		return clearState("written", replies...)
	}

	category := st.Category
	if category == "" {
		category = st.Data.String(model.FieldFacilityType)
	}
	c := chain.Advance(st.Chain, chain.Completed)
	chain.Propagate(c, res.EntityID, category)
	return p.nextStep(ctx, log, st, c, replies)
}

// skip drops the current chain step and moves on.
func (p *Pipeline) skip(ctx context.Context, log *logger.Logger, st *model.ConversationState) transition {
	info, _ := st.Operation.Info()
	p.recordAudit(ctx, audit.NewRecord(p.now(), st.InitiatingUser, model.AuditCancelled, info.Collection,
		st.Chain.EntityID, "skipped: "+operationTitle(st.Operation, model.LangEN), st.RawMessage, st.ConversationID))
	metrics.RecordWrite(string(st.Operation), string(model.AuditCancelled))

	c := chain.Advance(st.Chain, chain.Skipped)
	replies := []model.Reply{model.TextReply(say(st.Language, msgStepSkipped, chain.Label(st.Operation, st.Language)))}
	return p.nextStep(ctx, log, st, c, replies)
}

// cancel discards the pending operation together with any chain.
func (p *Pipeline) cancel(ctx context.Context, st *model.ConversationState) transition {
	if info, ok := st.Operation.Info(); ok {
		entityID := ""
		if info.EntityField != "" {
			entityID = st.Data.String(info.EntityField)
		}
		p.recordAudit(ctx, audit.NewRecord(p.now(), st.InitiatingUser, model.AuditCancelled, info.Collection,
			entityID, "cancelled: "+operationTitle(st.Operation, model.LangEN), st.RawMessage, st.ConversationID))
		metrics.RecordWrite(string(st.Operation), string(model.AuditCancelled))
	}
	return clearState("cancelled", model.TextReply(say(st.Language, msgCancelled)))
}

// nextStep presents the step c now points at, or the chain summary.
func (p *Pipeline) nextStep(ctx context.Context, log *logger.Logger, st *model.ConversationState, c *model.ChainState, replies []model.Reply) transition {
	if c.Finished() {
		replies = append(replies, model.TextReply(chain.Summary(c, st.Language)))
		return clearState("chain_finished", replies...)
	}

	step, _ := c.Current()
	next := &model.ConversationState{
		ConversationID: st.ConversationID,
		Phase:          model.PhaseIdle,
		Operation:      step.Operation,
		Data:           chain.StepData(c),
		InitiatingUser: st.InitiatingUser,
		SenderName:     st.SenderName,
		History:        st.History,
		Language:       st.Language,
		Chain:          c,
		Category:       c.Category,
		RawMessage:     st.RawMessage,
		CreatedAt:      st.CreatedAt,
	}

	if chain.NeedsInput(c) {
		next.Phase = model.PhaseAwaitingMissingFields
		next.AwaitingStepInput = true
		next.Revision = newRevision()
		return saveState(next, "step_input", append(replies, p.stepPrompt(next))...)
	}
	tr := p.evaluate(ctx, log, next, nil, nil, replies)
	if tr.keep {
		// The claimed state is already gone; a hard stop ends the chain.
		tr.keep = false
		tr.replies = append(replies, tr.replies...)
	}
	return tr
}

func summarize(st *model.ConversationState, res model.WriteResult) string {
	s := operationTitle(st.Operation, model.LangEN) + " " + res.RecordKey
	if v := st.Data.String("issue_summary"); v != "" {
		s += ": " + v
	}
	return s
}
