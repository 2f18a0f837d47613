package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/chain"
	"github.com/capitalize-ai/field-ops-assistant/internal/llm"
	"github.com/capitalize-ai/field-ops-assistant/internal/merge"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/requirements"
	"github.com/capitalize-ai/field-ops-assistant/internal/resolver"
	"github.com/capitalize-ai/field-ops-assistant/internal/store"
	"github.com/capitalize-ai/field-ops-assistant/internal/textnorm"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
	"github.com/capitalize-ai/field-ops-assistant/pkg/metrics"
)

// keyDateAck records the received date the user accepted as old.
const keyDateAck = "_date_ack"

// turn is one inbound message with its context.
type turn struct {
	msg  model.InboundMessage
	text string
	prev *model.ConversationState
	lang model.Language
	log  *logger.Logger
}

type phaseFunc func(ctx context.Context, t *turn) transition

// dispatch selects the handler for the phase the conversation is in.
func (p *Pipeline) dispatch(phase model.Phase) phaseFunc {
	switch phase {
	case model.PhaseAwaitingDisambiguation:
		return p.onDisambiguation
	case model.PhaseAwaitingWarningAck:
		return p.onWarningAck
	default:
		return p.onMessage
	}
}

// HandleMessage runs one inbound text message through the pipeline.
func (p *Pipeline) HandleMessage(ctx context.Context, msg model.InboundMessage) (*model.HandleResponse, error) {
	if msg.ConversationID == "" || msg.UserID == "" {
		return nil, ErrInvalidEvent
	}

	ctx, span := otel.Tracer("service").Start(ctx, "pipeline.handle_message")
	defer span.End()
	span.SetAttributes(attribute.String("conversation_id", msg.ConversationID))

	log := p.logger.WithConversation(logger.CorrelationID(ctx), msg.ConversationID, msg.UserID)

	if p.duplicate(ctx, msg.EventID) {
		log.Debug("Duplicate event dropped", zap.String("event_id", msg.EventID))
		metrics.RecordEvent("message", "duplicate")
		return &model.HandleResponse{Duplicate: true, Replies: []model.Reply{}}, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return &model.HandleResponse{Replies: []model.Reply{}}, nil
	}

	prev, err := p.loadState(ctx, msg.ConversationID)
	if err != nil {
		log.Error("Failed to load conversation state", zap.Error(err))
		metrics.RecordEvent("message", "state_error")
		return &model.HandleResponse{Replies: []model.Reply{model.TextReply(say(p.language, msgGenericError))}}, nil
	}

	lang := p.language
	if prev != nil && prev.Language != "" {
		lang = prev.Language
	}
	t := &turn{msg: msg, text: text, prev: prev, lang: lang, log: log}

	var tr transition
	switch {
	case prev == nil && matches(text, helpWords):
		tr = keepState("help", model.TextReply(say(lang, msgHelp)))
	case prev == nil && matches(text, greetingWords):
		tr = keepState("greeting", model.TextReply(say(lang, msgGreeting)))
	default:
		phase := model.PhaseIdle
		if prev != nil {
			phase = prev.Phase
		}
		tr = p.dispatch(phase)(ctx, t)
	}

	p.apply(ctx, log, msg.ConversationID, tr)
	metrics.RecordEvent("message", tr.outcome)
	span.SetAttributes(attribute.String("outcome", tr.outcome))
	log.Info("Message handled", zap.String("outcome", tr.outcome), zap.Int("replies", len(tr.replies)))

	return &model.HandleResponse{Replies: tr.replies}, nil
}

// onMessage parses free text and folds it into the conversation.
func (p *Pipeline) onMessage(ctx context.Context, t *turn) transition {
	var history []model.Turn
	if t.prev != nil {
		history = t.prev.History
	}
	intent, err := p.deps.Parser.Parse(ctx, llm.ParseRequest{
		Message:    t.text,
		SenderName: t.msg.SenderName,
		History:    history,
		Context:    parseContext(t.prev),
	})
	if err != nil {
		t.log.Error("Parser failed", zap.Error(err))
		return keepState("parse_error", model.TextReply(say(t.lang, msgGenericError)))
	}
	if intent.Language != "" {
		t.lang = intent.Language
	}

	switch {
	case intent.Error == model.ParseErrorFutureDate:
		return keepState("future_date", model.TextReply(say(t.lang, msgFutureDate)))
	case intent.Error != "":
		t.log.Warn("Parser reported an error", zap.String("kind", intent.Error))
		if intent.Message == "" {
			return keepState("parse_error", model.TextReply(say(t.lang, msgGenericError)))
		}
		return keepState("parse_error", model.TextReply(say(t.lang, msgParserError, intent.Message)))
	}

	res := merge.Merge(t.prev, intent)
	t.log.Debug("Intent merged",
		zap.String("parsed_operation", string(intent.Operation)),
		zap.String("operation", string(res.Operation)),
		zap.Int("rule", int(res.Rule)),
	)

	switch {
	case res.Operation == model.OpHelp:
		return keepState("help", model.TextReply(say(t.lang, msgHelp)))
	case res.Operation == model.OpQuery:
		return p.answerQuery(ctx, t.log, t.lang, res.Data)
	case res.Operation == model.OpClarify:
		return p.clarify(t, intent, res)
	case !res.Operation.IsWrite():
		reply := intent.Message
		if reply == "" {
			reply = say(t.lang, msgNotUnderstood)
		}
		return keepState("not_understood", model.TextReply(reply))
	}

	st, lead := p.stateFor(t, intent, res)
	parserMissing := intent.MissingFields
	if intent.Operation != st.Operation {
		parserMissing = nil
	}
	return p.evaluate(ctx, t.log, st, parserMissing, intent.Warnings, lead)
}

// stateFor builds the next state for a write operation, planning a chain
// when the intent is composite.
func (p *Pipeline) stateFor(t *turn, intent model.ParsedIntent, res merge.Result) (*model.ConversationState, []model.Reply) {
	st := &model.ConversationState{
		ConversationID: t.msg.ConversationID,
		Phase:          model.PhaseIdle,
		Operation:      res.Operation,
		Data:           res.Data,
		InitiatingUser: t.msg.UserID,
		SenderName:     t.msg.SenderName,
		Language:       t.lang,
		RawMessage:     t.text,
	}

	if prev := t.prev; prev != nil {
		st.History = prev.History
		if res.Rule == merge.RuleSameOperation || res.Rule == merge.RuleForcedContinuation {
			st.InitiatingUser = prev.InitiatingUser
			st.SenderName = prev.SenderName
			st.CreatedAt = prev.CreatedAt
			st.Chain = prev.Chain
			st.Category = prev.Category
			st.RawMessage = strings.TrimSpace(prev.RawMessage + "\n" + t.text)
		}
	}
	remember(st, t.text, intent)

	var lead []model.Reply
	if st.Chain == nil {
		data := st.Data
		var extra []model.ExtraOperation
		if st.Operation == model.OpCreateSite {
			data, extra = chain.Extract(st.Data)
		}
		extra = append(extra, intent.ExtraOperations...)
		if c := chain.Build(st.Operation, data, extra); c != nil {
			st.Chain = c
			st.Data = data
			if st.Operation == model.OpCreateSite {
				lead = append(lead, model.TextReply(chain.Roadmap(c, t.lang)))
			}
		}
	}
	if st.Category == "" && st.Chain != nil {
		st.Category = st.Chain.Category
	}
	return st, lead
}

// evaluate drives a write operation from validation to the confirmation gate.
func (p *Pipeline) evaluate(ctx context.Context, log *logger.Logger, st *model.ConversationState, parserMissing, parserWarnings []string, lead []model.Reply) transition {
	lang := st.Language
	op := st.Operation
	info, _ := op.Info()

	requirements.NormalizeDates(st.Data)
	warnings, err := requirements.CheckDates(st.Data, p.now(), p.staleAfter)
	switch {
	case errors.Is(err, requirements.ErrFutureDate):
		return keepState("future_date", model.TextReply(say(lang, msgFutureDate)))
	case errors.Is(err, requirements.ErrResolvedBeforeReceived):
		return keepState("invalid_dates", model.TextReply(say(lang, msgResolvedBeforeReceived)))
	}
	for _, w := range parserWarnings {
		if w == model.WarningOldDate && !contains(warnings, w) {
			warnings = append(warnings, w)
		}
	}

	if info.EntityField != "" {
		if tr, done := p.resolveEntity(ctx, log, st, info.EntityField, lead); done {
			return tr
		}
	}
	if cat := st.Data.String(model.FieldFacilityType); cat != "" {
		st.Category = cat
	}
	if op == model.OpUpdateSupport {
		if tr, done := p.targetTicket(ctx, log, st); done {
			return tr
		}
	}

	verdict := requirements.Reconcile(parserMissing, p.deps.Requirements.Evaluate(op, st.Data, st.Category))
	st.AwaitingStepInput = false
	st.Candidates = nil
	if verdict.Blocked() {
		st.Phase = model.PhaseAwaitingMissingFields
		st.MissingFields = verdict.Must
		st.Revision = newRevision()
		return saveState(st, "missing_fields", append(lead, missingPrompt(st, verdict))...)
	}
	st.MissingFields = nil

	if _, err := model.BuildRecord(op, st.Data); err != nil {
		var invalid *model.InvalidFieldsError
		if !errors.As(err, &invalid) {
			log.Warn("Record failed to decode", zap.String("operation", string(op)), zap.Error(err))
			return keepState("invalid_record", model.TextReply(say(lang, msgGenericError)))
		}
		for _, f := range invalid.Fields {
			if !st.Data.Has(f) {
				delete(st.Data, model.FieldEntries)
			}
			delete(st.Data, f)
		}
		st.Phase = model.PhaseAwaitingMissingFields
		st.MissingFields = invalid.Fields
		st.Revision = newRevision()
		return saveState(st, "invalid_fields", append(lead, invalidPrompt(st, invalid.Fields))...)
	}

	received := st.Data.String(model.FieldReceivedDate)
	if contains(warnings, model.WarningOldDate) && st.Data.String(keyDateAck) != received {
		st.Phase = model.PhaseAwaitingWarningAck
		st.PendingWarning = model.WarningOldDate
		st.Revision = newRevision()
		days := int(p.staleAfter.Hours() / 24)
		return saveState(st, "warning", append(lead, model.TextReply(say(lang, msgOldDate, received, days)))...)
	}

	st.Phase = model.PhaseAwaitingConfirmation
	st.PendingWarning = ""
	st.Revision = newRevision()
	return saveState(st, "awaiting_confirmation", append(lead, p.preview(st, verdict.Important))...)
}

// targetTicket pins an update without a ticket id to the newest open ticket
// of the site.
func (p *Pipeline) targetTicket(ctx context.Context, log *logger.Logger, st *model.ConversationState) (transition, bool) {
	siteID := st.Data.String(model.FieldSiteID)
	if siteID == "" || st.Data.Has(model.FieldTicketID) {
		return transition{}, false
	}
	key, err := p.deps.Queries.FindOpenTicket(ctx, siteID)
	switch {
	case err == nil:
		st.Data[model.FieldTicketID] = key
		return transition{}, false
	case errors.Is(err, store.ErrNotFound):
		return clearState("no_open_ticket", model.TextReply(say(st.Language, msgNoOpenTicket, siteID))), true
	default:
		log.Error("Failed to look up open ticket", zap.String("site_id", siteID), zap.Error(err))
		return keepState("ticket_error", model.TextReply(say(st.Language, msgGenericError))), true
	}
}

// resolveEntity maps the free-text site reference onto a canonical id. It
// reports done when the pass ends in a prompt or an error.
func (p *Pipeline) resolveEntity(ctx context.Context, log *logger.Logger, st *model.ConversationState, field string, lead []model.Reply) (transition, bool) {
	ref := st.Data.String(field)
	if ref == "" {
		return transition{}, false
	}
	lang := st.Language

	entities, err := p.deps.Directory.Entities(ctx)
	if err != nil {
		log.Error("Failed to load entities", zap.Error(err))
		return keepState("entity_error", model.TextReply(say(lang, msgGenericError))), true
	}

	found := p.deps.Resolver.Resolve(ref, entities)
	switch len(found) {
	case 1:
		st.Data[field] = found[0].ID
		if st.Category == "" {
			st.Category = found[0].Category()
		}
		return transition{}, false
	case 0:
		delete(st.Data, field)
		st.Phase = model.PhaseAwaitingMissingFields
		st.MissingFields = []string{field}
		st.Revision = newRevision()
		msg := say(lang, msgEntityNotFound, ref)
		if known := resolver.KnownIDs(entities); len(known) > 0 {
			if len(known) > 10 {
				known = known[:10]
			}
			msg += "\n" + say(lang, msgKnownEntities, strings.Join(known, ", "))
		}
		return saveState(st, "entity_not_found", append(lead, model.TextReply(msg))...), true
	default:
		st.Phase = model.PhaseAwaitingDisambiguation
		st.MissingFields = nil
		st.Candidates = make([]string, len(found))
		for i, e := range found {
			st.Candidates[i] = e.ID
		}
		st.Revision = newRevision()
		return saveState(st, "disambiguation", append(lead, candidatesPrompt(lang, found))...), true
	}
}

// onDisambiguation takes the user's pick among the offered sites.
func (p *Pipeline) onDisambiguation(ctx context.Context, t *turn) transition {
	if matches(t.text, abortWords) {
		return clearState("cancelled", model.TextReply(say(t.lang, msgCancelled)))
	}

	st := t.prev.Clone()
	entities, err := p.deps.Directory.Entities(ctx)
	if err != nil {
		t.log.Error("Failed to load entities", zap.Error(err))
		return keepState("entity_error", model.TextReply(say(t.lang, msgGenericError)))
	}
	candidates := make([]model.CanonicalEntity, 0, len(st.Candidates))
	for _, id := range st.Candidates {
		for _, e := range entities {
			if e.ID == id {
				candidates = append(candidates, e)
				break
			}
		}
	}

	picked, ok := pickCandidate(t.text, candidates, p.deps.Resolver)
	if !ok {
		reply := candidatesPrompt(t.lang, candidates)
		reply.Text = say(t.lang, msgPickAgain) + "\n" + reply.Text
		return keepState("disambiguation", reply)
	}

	info, _ := st.Operation.Info()
	st.Data[info.EntityField] = picked.ID
	if st.Category == "" {
		st.Category = picked.Category()
	}
	st.Candidates = nil
	st.Phase = model.PhaseIdle
	remember(st, t.text, model.ParsedIntent{Operation: st.Operation, Data: model.Data{info.EntityField: picked.ID}})
	return p.evaluate(ctx, t.log, st, nil, nil, nil)
}

// pickCandidate accepts a list number, an id or a name among candidates.
func pickCandidate(answer string, candidates []model.CanonicalEntity, r *resolver.Resolver) (model.CanonicalEntity, bool) {
	answer = strings.TrimSpace(strings.TrimRight(answer, ".)"))
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(candidates) {
			return candidates[n-1], true
		}
		return model.CanonicalEntity{}, false
	}
	folded := textnorm.Fold(answer)
	for _, c := range candidates {
		if textnorm.Fold(c.ID) == folded {
			return c, true
		}
	}
	if found := r.Resolve(answer, candidates); len(found) == 1 {
		return found[0], true
	}
	return model.CanonicalEntity{}, false
}

// onWarningAck waits for an explicit continue or abort on a soft warning.
func (p *Pipeline) onWarningAck(ctx context.Context, t *turn) transition {
	switch {
	case matches(t.text, continueWords):
		st := t.prev.Clone()
		st.Data[keyDateAck] = st.Data.String(model.FieldReceivedDate)
		st.PendingWarning = ""
		return p.evaluate(ctx, t.log, st, nil, nil, nil)
	case matches(t.text, abortWords):
		return clearState("cancelled", model.TextReply(say(t.lang, msgCancelled)))
	default:
		return keepState("warning", model.TextReply(say(t.lang, msgWarningReprompt)))
	}
}

// clarify relays the parser's question. A pending write is left untouched.
func (p *Pipeline) clarify(t *turn, intent model.ParsedIntent, res merge.Result) transition {
	question := intent.Message
	if question == "" {
		question = say(t.lang, msgNotUnderstood)
	}
	if t.prev != nil && t.prev.Operation.IsWrite() {
		return keepState("clarify", model.TextReply(question))
	}

	st := &model.ConversationState{
		ConversationID: t.msg.ConversationID,
		Phase:          model.PhaseAwaitingClarification,
		Operation:      model.OpClarify,
		Data:           res.Data,
		InitiatingUser: t.msg.UserID,
		SenderName:     t.msg.SenderName,
		Language:       t.lang,
		RawMessage:     t.text,
		Revision:       newRevision(),
	}
	if t.prev != nil {
		st.History = t.prev.History
	}
	remember(st, t.text, intent)
	return saveState(st, "clarify", model.TextReply(question))
}

// parseContext describes the pending operation to the parser.
func parseContext(prev *model.ConversationState) string {
	if prev == nil || prev.Operation.IsPassive() {
		return ""
	}
	var parts []string
	if id := prev.Data.String(model.FieldSiteID); id != "" {
		parts = append(parts, "known entity: "+id)
	}
	parts = append(parts, "expected operation: "+string(prev.Operation))
	if len(prev.MissingFields) > 0 {
		parts = append(parts, "missing: "+strings.Join(prev.MissingFields, ", "))
	}
	if ind := chain.Indicator(prev.Chain); ind != nil {
		parts = append(parts, "step "+strconv.Itoa(ind.Current)+"/"+strconv.Itoa(ind.Total))
	}
	return strings.Join(parts, ", ")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
