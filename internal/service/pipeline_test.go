package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/field-ops-assistant/internal/dedup"
	"github.com/capitalize-ai/field-ops-assistant/internal/llm"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/requirements"
	"github.com/capitalize-ai/field-ops-assistant/internal/resolver"
	"github.com/capitalize-ai/field-ops-assistant/internal/state"
	"github.com/capitalize-ai/field-ops-assistant/internal/store"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

var today = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type parseResult struct {
	intent model.ParsedIntent
	err    error
}

type fakeParser struct {
	mu      sync.Mutex
	queue   []parseResult
	reqs    []llm.ParseRequest
	unknown int
}

func (f *fakeParser) push(intent model.ParsedIntent) {
	f.queue = append(f.queue, parseResult{intent: intent})
}

func (f *fakeParser) fail(err error) {
	f.queue = append(f.queue, parseResult{err: err})
}

func (f *fakeParser) Parse(_ context.Context, req llm.ParseRequest) (model.ParsedIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if len(f.queue) == 0 {
		f.unknown++
		return model.ParsedIntent{}, errors.New("unexpected parse")
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next.intent, next.err
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []store.WriteRequest
	err     error
	onWrite func(store.WriteRequest) model.WriteResult
}

func (f *fakeExecutor) Execute(_ context.Context, req store.WriteRequest) (model.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return model.WriteResult{}, f.err
	}
	if f.onWrite != nil {
		return f.onWrite(req), nil
	}
	info, _ := req.Operation.Info()
	return model.WriteResult{
		Collection: info.Collection,
		EntityID:   req.Data.String(model.FieldSiteID),
		RecordKey:  "SUP-001",
		Rows:       1,
	}, nil
}

type fakeDirectory struct {
	entities    []model.CanonicalEntity
	err         error
	invalidated int
}

func (f *fakeDirectory) Entities(context.Context) ([]model.CanonicalEntity, error) {
	return f.entities, f.err
}

func (f *fakeDirectory) Invalidate() { f.invalidated++ }

type fakeQueries struct {
	open    []store.Row
	stock   []store.Row
	site    store.SiteSummary
	tickets map[string]string
}

func (f *fakeQueries) ReadSiteSummary(_ context.Context, siteID string) (store.SiteSummary, error) {
	if f.site.Site.Key != siteID {
		return store.SiteSummary{}, store.ErrNotFound
	}
	return f.site, nil
}

func (f *fakeQueries) ReadOpenIssues(context.Context, string) ([]store.Row, error) {
	return f.open, nil
}

func (f *fakeQueries) ReadStock(context.Context) ([]store.Row, error) {
	return f.stock, nil
}

func (f *fakeQueries) FindOpenTicket(_ context.Context, siteID string) (string, error) {
	key, ok := f.tickets[siteID]
	if !ok {
		return "", store.ErrNotFound
	}
	return key, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []model.AuditRecord
}

func (f *fakeAudit) Record(_ context.Context, rec model.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) outcomes() []model.AuditOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AuditOutcome, len(f.records))
	for i, r := range f.records {
		out[i] = r.Outcome
	}
	return out
}

func sites() []model.CanonicalEntity {
	return []model.CanonicalEntity{
		{ID: "ASM-TR-01", Name: "Anadolu Sağlık Merkezi", Attributes: model.Data{"facility_type": "Healthcare"}},
		{ID: "MIG-TR-01", Name: "Migros Kadıköy", Attributes: model.Data{"facility_type": "Food"}},
		{ID: "MIG-TR-02", Name: "Migros Ataşehir", Attributes: model.Data{"facility_type": "Food"}},
	}
}

type harness struct {
	p       *Pipeline
	parser  *fakeParser
	exec    *fakeExecutor
	dir     *fakeDirectory
	queries *fakeQueries
	audit   *fakeAudit
	states  *state.MemoryStore
	events  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	engine, err := requirements.Default()
	require.NoError(t, err)

	clock := func() time.Time { return today }
	h := &harness{
		parser:  &fakeParser{},
		exec:    &fakeExecutor{},
		dir:     &fakeDirectory{entities: sites()},
		queries: &fakeQueries{},
		audit:   &fakeAudit{},
		states:  state.NewMemoryStore(time.Hour, clock),
	}
	h.p = NewPipeline(Deps{
		Dedup:        dedup.NewMemory(time.Minute, dedup.WithClock(clock)),
		States:       h.states,
		Parser:       h.parser,
		Directory:    h.dir,
		Resolver:     resolver.New(nil),
		Requirements: engine,
		Executor:     h.exec,
		Queries:      h.queries,
		Audit:        h.audit,
	}, Options{Now: clock}, logger.NewNop())
	return h
}

func (h *harness) send(t *testing.T, user, text string) *model.HandleResponse {
	t.Helper()
	h.events++
	resp, err := h.p.HandleMessage(context.Background(), model.InboundMessage{
		EventID:        fmt.Sprintf("evt-%d", h.events),
		ConversationID: "C1",
		UserID:         user,
		SenderName:     "Ayşe",
		Text:           text,
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) click(t *testing.T, user string, action model.ActionKind, revision string) *model.HandleResponse {
	t.Helper()
	h.events++
	resp, err := h.p.HandleAction(context.Background(), model.InboundAction{
		EventID:        fmt.Sprintf("evt-%d", h.events),
		ConversationID: "C1",
		UserID:         user,
		Action:         action,
		Revision:       revision,
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) state(t *testing.T) *model.ConversationState {
	t.Helper()
	st, err := h.p.State(context.Background(), "C1")
	require.NoError(t, err)
	return st
}

func (h *harness) noState(t *testing.T) {
	t.Helper()
	_, err := h.p.State(context.Background(), "C1")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func supportData() model.Data {
	return model.Data{
		"site_id":       "ASM-TR-01",
		"received_date": "2025-06-10",
		"type":          "Visit",
		"status":        "Open",
		"issue_summary": "tag offline",
		"responsible":   "Ahmet",
	}
}

func lastReply(t *testing.T, resp *model.HandleResponse) model.Reply {
	t.Helper()
	require.NotEmpty(t, resp.Replies)
	return resp.Replies[len(resp.Replies)-1]
}

func TestHandleMessage_RejectsIncompleteEvent(t *testing.T) {
	h := newHarness(t)
	_, err := h.p.HandleMessage(context.Background(), model.InboundMessage{ConversationID: "C1", Text: "hi"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestHandleMessage_Shortcuts(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"yardım", say(model.LangTR, msgHelp)},
		{"Merhaba!", say(model.LangTR, msgGreeting)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h := newHarness(t)
			resp := h.send(t, "U1", tt.text)
			assert.Equal(t, tt.want, lastReply(t, resp).Text)
			assert.Empty(t, h.parser.reqs)
			h.noState(t)
		})
	}
}

func TestHandleMessage_Duplicate(t *testing.T) {
	h := newHarness(t)
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: supportData()})

	msg := model.InboundMessage{EventID: "E1", ConversationID: "C1", UserID: "U1", Text: "ASM ziyaret"}
	first, err := h.p.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	second, err := h.p.HandleMessage(context.Background(), msg)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Empty(t, second.Replies)
	assert.Len(t, h.parser.reqs, 1)
}

func TestHandleMessage_MissingFieldsThenConfirm(t *testing.T) {
	h := newHarness(t)
	data := supportData()
	delete(data, "responsible")
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})

	resp := h.send(t, "U1", "ASM'de tag offline, ziyaret ettim")
	assert.Contains(t, lastReply(t, resp).Text, fieldQuestion("responsible", model.LangTR))

	st := h.state(t)
	assert.Equal(t, model.PhaseAwaitingMissingFields, st.Phase)
	assert.Equal(t, []string{"responsible"}, st.MissingFields)

	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: model.Data{"responsible": "Ahmet"}})
	resp = h.send(t, "U1", "Ahmet ilgilendi")
	require.Len(t, h.parser.reqs, 2)
	assert.Contains(t, h.parser.reqs[1].Context, "expected operation: log_support")
	assert.Contains(t, h.parser.reqs[1].Context, "missing: responsible")

	card := lastReply(t, resp)
	assert.Equal(t, model.ReplyConfirmation, card.Kind)
	st = h.state(t)
	assert.Equal(t, model.PhaseAwaitingConfirmation, st.Phase)
	assert.Equal(t, "Ahmet", st.Data.String("responsible"))
	assert.Equal(t, "tag offline", st.Data.String("issue_summary"))
	assert.Equal(t, "Healthcare", st.Category)
	require.Len(t, card.Buttons, 2)
	assert.Equal(t, st.Revision, card.Buttons[0].Revision)

	resp = h.click(t, "U1", model.ActionConfirm, st.Revision)
	assert.Contains(t, lastReply(t, resp).Text, "SUP-001")
	h.noState(t)

	resp = h.click(t, "U1", model.ActionConfirm, st.Revision)
	assert.Equal(t, say(model.LangTR, msgNothingPending), lastReply(t, resp).Text)

	assert.Len(t, h.exec.calls, 1)
	assert.Equal(t, []model.AuditOutcome{model.AuditCreate}, h.audit.outcomes())
	assert.Equal(t, "ASM-TR-01", h.audit.records[0].EntityID)
}

func TestHandleMessage_PreviewOrder(t *testing.T) {
	h := newHarness(t)
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: supportData()})

	card := lastReply(t, h.send(t, "U1", "ASM ziyaret"))
	require.NotEmpty(t, card.Fields)
	assert.Equal(t, "Site ID", card.Fields[0].Label)
	assert.Equal(t, "ASM-TR-01", card.Fields[0].Value)
}

func TestHandleMessage_FutureDate(t *testing.T) {
	t.Run("parser flag", func(t *testing.T) {
		h := newHarness(t)
		h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Error: model.ParseErrorFutureDate})
		resp := h.send(t, "U1", "yarın gittim")
		assert.Equal(t, say(model.LangTR, msgFutureDate), lastReply(t, resp).Text)
		h.noState(t)
	})

	t.Run("merged payload", func(t *testing.T) {
		h := newHarness(t)
		data := supportData()
		data["received_date"] = "2025-07-01"
		h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})
		resp := h.send(t, "U1", "1 temmuzda gittim")
		assert.Equal(t, say(model.LangTR, msgFutureDate), lastReply(t, resp).Text)
		h.noState(t)
	})
}

func TestHandleMessage_ResolvedBeforeReceived(t *testing.T) {
	h := newHarness(t)
	data := supportData()
	data["status"] = "Resolved"
	data["resolved_date"] = "2025-06-01"
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})

	resp := h.send(t, "U1", "çözüldü")
	assert.Equal(t, say(model.LangTR, msgResolvedBeforeReceived), lastReply(t, resp).Text)
	h.noState(t)
}

func TestHandleMessage_ParserErrorKind(t *testing.T) {
	tests := []struct {
		name   string
		intent model.ParsedIntent
		want   string
	}{
		{
			name:   "with explanation",
			intent: model.ParsedIntent{Error: model.ParseErrorJSON, Message: "mesaj çözümlenemedi"},
			want:   say(model.LangTR, msgParserError, "mesaj çözümlenemedi"),
		},
		{
			name:   "bare kind",
			intent: model.ParsedIntent{Operation: model.OpLogSupport, Error: "rate_limited"},
			want:   say(model.LangTR, msgGenericError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			data := supportData()
			delete(data, "responsible")
			h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})
			h.send(t, "U1", "ASM ziyaret")
			before := h.state(t)

			h.parser.push(tt.intent)
			resp := h.send(t, "U1", "Ahmet")
			assert.Equal(t, tt.want, lastReply(t, resp).Text)

			after := h.state(t)
			assert.Equal(t, before.Revision, after.Revision)
			assert.Equal(t, []string{"responsible"}, after.MissingFields)
		})
	}
}

func TestHandleMessage_ParseFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	data := supportData()
	delete(data, "responsible")
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})
	h.send(t, "U1", "ASM ziyaret")
	before := h.state(t)

	h.parser.fail(llm.ErrMalformedOutput)
	resp := h.send(t, "U1", "???")
	assert.Equal(t, say(model.LangTR, msgGenericError), lastReply(t, resp).Text)

	after := h.state(t)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, before.MissingFields, after.MissingFields)
}

func TestHandleMessage_Disambiguation(t *testing.T) {
	h := newHarness(t)
	data := supportData()
	data["site_id"] = "MIG"
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})

	resp := h.send(t, "U1", "Migros'a gittim")
	text := lastReply(t, resp).Text
	assert.Contains(t, text, "1. Migros Kadıköy (`MIG-TR-01`)")
	assert.Contains(t, text, "2. Migros Ataşehir (`MIG-TR-02`)")
	st := h.state(t)
	assert.Equal(t, model.PhaseAwaitingDisambiguation, st.Phase)
	assert.Equal(t, []string{"MIG-TR-01", "MIG-TR-02"}, st.Candidates)

	resp = h.send(t, "U1", "7")
	assert.Contains(t, lastReply(t, resp).Text, say(model.LangTR, msgPickAgain))
	assert.Equal(t, model.PhaseAwaitingDisambiguation, h.state(t).Phase)

	resp = h.send(t, "U1", "2")
	assert.Equal(t, model.ReplyConfirmation, lastReply(t, resp).Kind)
	st = h.state(t)
	assert.Equal(t, "MIG-TR-02", st.Data.String("site_id"))
	assert.Equal(t, "Food", st.Category)
	assert.Empty(t, st.Candidates)
	assert.Len(t, h.parser.reqs, 1)
}

func TestPickCandidate(t *testing.T) {
	r := resolver.New(nil)
	candidates := sites()[1:]
	tests := []struct {
		answer string
		want   string
		ok     bool
	}{
		{"1", "MIG-TR-01", true},
		{"2.", "MIG-TR-02", true},
		{"3", "", false},
		{"mig-tr-02", "MIG-TR-02", true},
		{"Migros Ataşehir", "MIG-TR-02", true},
		{"bilmiyorum", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, ok := pickCandidate(tt.answer, candidates, r)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestHandleMessage_EntityNotFound(t *testing.T) {
	h := newHarness(t)
	data := supportData()
	data["site_id"] = "Zzqqxx"
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})

	resp := h.send(t, "U1", "Zzqqxx ziyaret")
	text := lastReply(t, resp).Text
	assert.Contains(t, text, "Zzqqxx")
	assert.Contains(t, text, "ASM-TR-01")

	st := h.state(t)
	assert.Equal(t, model.PhaseAwaitingMissingFields, st.Phase)
	assert.Equal(t, []string{"site_id"}, st.MissingFields)
	assert.False(t, st.Data.Has("site_id"))
}

func TestHandleMessage_InvalidFieldIsAskedAgain(t *testing.T) {
	h := newHarness(t)
	data := supportData()
	data["type"] = "Meeting"
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})

	resp := h.send(t, "U1", "toplantı yaptık")
	assert.Contains(t, lastReply(t, resp).Text, fieldQuestion("type", model.LangTR))

	st := h.state(t)
	assert.Equal(t, model.PhaseAwaitingMissingFields, st.Phase)
	assert.Equal(t, []string{"type"}, st.MissingFields)
	assert.False(t, st.Data.Has("type"))
}

func TestHandleMessage_OldDateWarning(t *testing.T) {
	setup := func(t *testing.T) *harness {
		h := newHarness(t)
		data := supportData()
		data["received_date"] = "2025-01-02"
		h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})
		resp := h.send(t, "U1", "ocakta gittim")
		assert.Contains(t, lastReply(t, resp).Text, "2025-01-02")
		assert.Equal(t, model.PhaseAwaitingWarningAck, h.state(t).Phase)
		return h
	}

	t.Run("continue", func(t *testing.T) {
		h := setup(t)
		resp := h.send(t, "U1", "Devam")
		assert.Equal(t, model.ReplyConfirmation, lastReply(t, resp).Kind)
		assert.Equal(t, model.PhaseAwaitingConfirmation, h.state(t).Phase)
		assert.Len(t, h.parser.reqs, 1)
	})

	t.Run("abort", func(t *testing.T) {
		h := setup(t)
		resp := h.send(t, "U1", "iptal")
		assert.Equal(t, say(model.LangTR, msgCancelled), lastReply(t, resp).Text)
		h.noState(t)
	})

	t.Run("anything else", func(t *testing.T) {
		h := setup(t)
		resp := h.send(t, "U1", "hmm")
		assert.Equal(t, say(model.LangTR, msgWarningReprompt), lastReply(t, resp).Text)
		assert.Equal(t, model.PhaseAwaitingWarningAck, h.state(t).Phase)
	})
}

func TestHandleMessage_ClarifyCarriesSite(t *testing.T) {
	h := newHarness(t)
	h.parser.push(model.ParsedIntent{
		Operation: model.OpClarify,
		Data:      model.Data{"site_id": "ASM-TR-01"},
		Message:   "ASM için ne yapmak istersiniz?",
	})
	resp := h.send(t, "U1", "ASM")
	assert.Equal(t, "ASM için ne yapmak istersiniz?", lastReply(t, resp).Text)
	assert.Equal(t, model.OpClarify, h.state(t).Operation)

	data := supportData()
	delete(data, "site_id")
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})
	resp = h.send(t, "U1", "destek kaydı gir")
	assert.Equal(t, model.ReplyConfirmation, lastReply(t, resp).Kind)
	assert.Equal(t, "ASM-TR-01", h.state(t).Data.String("site_id"))
}

func TestHandleMessage_Query(t *testing.T) {
	h := newHarness(t)
	h.queries.open = []store.Row{{
		Collection: model.CollectionSupportLog,
		Key:        "SUP-007",
		EntityID:   "MIG-TR-01",
		Data:       model.Data{"status": "Open", "issue_summary": "gateway down"},
	}}
	h.parser.push(model.ParsedIntent{Operation: model.OpQuery, Data: model.Data{"query_type": "open_issues"}})

	resp := h.send(t, "U1", "açık kayıtlar")
	text := lastReply(t, resp).Text
	assert.Contains(t, text, "SUP-007")
	assert.Contains(t, text, "gateway down")
	h.noState(t)
}

func TestHandleAction_WrongUser(t *testing.T) {
	for _, action := range []model.ActionKind{model.ActionConfirm, model.ActionCancel} {
		t.Run(string(action), func(t *testing.T) {
			h := newHarness(t)
			h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: supportData()})
			h.send(t, "U1", "ASM ziyaret")
			st := h.state(t)

			resp := h.click(t, "U2", action, st.Revision)
			assert.Equal(t, say(model.LangTR, msgNotOwner, "Ayşe"), lastReply(t, resp).Text)
			assert.Empty(t, h.exec.calls)
			assert.Empty(t, h.audit.records)

			after := h.state(t)
			assert.Equal(t, st.Revision, after.Revision)
			assert.Equal(t, model.PhaseAwaitingConfirmation, after.Phase)
			assert.Equal(t, st.Data, after.Data)

			h.click(t, "U1", model.ActionConfirm, st.Revision)
			assert.Len(t, h.exec.calls, 1)
		})
	}
}

func TestHandleAction_StaleRevision(t *testing.T) {
	h := newHarness(t)
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: supportData()})
	h.send(t, "U1", "ASM ziyaret")

	resp := h.click(t, "U1", model.ActionConfirm, "older")
	assert.Empty(t, resp.Replies)
	assert.Empty(t, h.exec.calls)
	assert.Equal(t, model.PhaseAwaitingConfirmation, h.state(t).Phase)
}

func TestHandleAction_WriteFailure(t *testing.T) {
	h := newHarness(t)
	h.exec.err = errors.New("connection refused")
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: supportData()})
	h.send(t, "U1", "ASM ziyaret")

	resp := h.click(t, "U1", model.ActionConfirm, "")
	assert.Equal(t, say(model.LangTR, msgWriteFailed), lastReply(t, resp).Text)
	h.noState(t)

	require.Len(t, h.audit.records, 1)
	assert.Equal(t, model.AuditFailed, h.audit.records[0].Outcome)
	assert.Contains(t, h.audit.records[0].Summary, "connection refused")
}

func TestHandleAction_Cancel(t *testing.T) {
	h := newHarness(t)
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: supportData()})
	h.send(t, "U1", "ASM ziyaret")

	resp := h.click(t, "U1", model.ActionCancel, "")
	assert.Equal(t, say(model.LangTR, msgCancelled), lastReply(t, resp).Text)
	h.noState(t)
	assert.Empty(t, h.exec.calls)
	assert.Equal(t, []model.AuditOutcome{model.AuditCancelled}, h.audit.outcomes())
}

func TestHandleAction_NothingPending(t *testing.T) {
	h := newHarness(t)
	resp := h.click(t, "U1", model.ActionConfirm, "")
	assert.Equal(t, say(model.LangTR, msgNothingPending), lastReply(t, resp).Text)
}

func TestChain_CreateSiteWithHardware(t *testing.T) {
	h := newHarness(t)
	h.exec.onWrite = func(req store.WriteRequest) model.WriteResult {
		info, _ := req.Operation.Info()
		if req.Operation == model.OpCreateSite {
			h.dir.entities = append(h.dir.entities, model.CanonicalEntity{
				ID:         "AS-TR-01",
				Name:       "Anadolu Sağlık",
				Attributes: model.Data{"facility_type": "Healthcare"},
			})
			return model.WriteResult{Collection: info.Collection, EntityID: "AS-TR-01", RecordKey: "AS-TR-01", Rows: 1}
		}
		return model.WriteResult{Collection: info.Collection, EntityID: req.Data.String("site_id"), RecordKey: "AS-TR-01/Tag", Rows: 1}
	}
	h.parser.push(model.ParsedIntent{Operation: model.OpCreateSite, Data: model.Data{
		"customer":        "Anadolu Sağlık",
		"city":            "Istanbul",
		"country":         "Turkey",
		"facility_type":   "Healthcare",
		"contract_status": "Active",
		"supervisor_1":    "Dr. Ece",
		"phone_1":         "+90 555 000 00 00",
		"hardware":        []any{map[string]any{"device_type": "Tag", "qty": 25}},
	}})

	resp := h.send(t, "U1", "Yeni müşteri Anadolu Sağlık, 25 tag")
	require.Len(t, resp.Replies, 2)
	assert.Contains(t, resp.Replies[0].Text, "Müşteri kaydı oluşturuyorum")
	card := resp.Replies[1]
	assert.Equal(t, model.ReplyConfirmation, card.Kind)
	assert.Equal(t, &model.StepIndicator{Current: 1, Total: 3}, card.Step)
	assert.Len(t, card.Buttons, 2)

	st := h.state(t)
	assert.False(t, st.Data.Has("hardware"))

	// Step 1: the site itself.
	resp = h.click(t, "U1", model.ActionConfirm, st.Revision)
	require.Len(t, resp.Replies, 2)
	assert.Contains(t, resp.Replies[0].Text, "AS-TR-01")
	card = resp.Replies[1]
	assert.Equal(t, model.ReplyConfirmation, card.Kind)
	assert.Equal(t, &model.StepIndicator{Current: 2, Total: 3}, card.Step)
	require.Len(t, card.Buttons, 3)
	assert.Equal(t, model.ActionSkip, card.Buttons[2].Action)
	assert.Equal(t, 1, h.dir.invalidated)

	st = h.state(t)
	assert.Equal(t, model.OpUpdateHardware, st.Operation)
	assert.Equal(t, "AS-TR-01", st.Data.String("site_id"))
	assert.Equal(t, "Healthcare", st.Category)

	// Step 2: hardware, confirmed.
	resp = h.click(t, "U1", model.ActionConfirm, st.Revision)
	prompt := lastReply(t, resp)
	assert.Equal(t, model.ReplyPrompt, prompt.Kind)
	assert.Equal(t, &model.StepIndicator{Current: 3, Total: 3}, prompt.Step)
	require.Len(t, prompt.Buttons, 1)

	st = h.state(t)
	assert.Equal(t, model.OpUpdateImplementation, st.Operation)
	assert.True(t, st.AwaitingStepInput)

	// Step 3: settings, skipped.
	resp = h.click(t, "U1", model.ActionSkip, prompt.Buttons[0].Revision)
	assert.Equal(t, "`AS-TR-01` tamamlandı: saha ✅, donanım ✅, ayarlar ⏭️", lastReply(t, resp).Text)
	h.noState(t)

	assert.Len(t, h.exec.calls, 2)
	assert.Equal(t, []model.AuditOutcome{model.AuditCreate, model.AuditUpdate, model.AuditCancelled}, h.audit.outcomes())
}

func TestChain_StepInputContinuesChain(t *testing.T) {
	h := newHarness(t)
	h.parser.push(model.ParsedIntent{Operation: model.OpCreateSite, Data: model.Data{
		"customer":        "Anadolu Sağlık",
		"city":            "Istanbul",
		"country":         "Turkey",
		"facility_type":   "Healthcare",
		"contract_status": "Active",
		"supervisor_1":    "Dr. Ece",
		"phone_1":         "+90 555 000 00 00",
	}})
	h.exec.onWrite = func(req store.WriteRequest) model.WriteResult {
		info, _ := req.Operation.Info()
		h.dir.entities = append(h.dir.entities, model.CanonicalEntity{ID: "AS-TR-01", Name: "Anadolu Sağlık"})
		return model.WriteResult{Collection: info.Collection, EntityID: "AS-TR-01", RecordKey: "AS-TR-01", Rows: 1}
	}
	h.send(t, "U1", "Yeni müşteri Anadolu Sağlık")

	resp := h.click(t, "U1", model.ActionConfirm, "")
	assert.Equal(t, model.ReplyPrompt, lastReply(t, resp).Kind)
	assert.Equal(t, model.OpUpdateHardware, h.state(t).Operation)

	h.parser.push(model.ParsedIntent{Operation: model.OpUpdateHardware, Data: model.Data{"device_type": "Gateway", "qty": 2}})
	resp = h.send(t, "U1", "2 gateway")
	assert.Contains(t, h.parser.reqs[1].Context, "known entity: AS-TR-01")

	card := lastReply(t, resp)
	assert.Equal(t, model.ReplyConfirmation, card.Kind)
	assert.Equal(t, &model.StepIndicator{Current: 2, Total: 3}, card.Step)

	st := h.state(t)
	require.NotNil(t, st.Chain)
	assert.Equal(t, "AS-TR-01", st.Data.String("site_id"))
	assert.False(t, st.AwaitingStepInput)
}

func TestHandleMessage_UpdateSupportPartial(t *testing.T) {
	h := newHarness(t)
	h.parser.push(model.ParsedIntent{Operation: model.OpUpdateSupport, Data: model.Data{
		"site_id":       "ASM-TR-01",
		"ticket_id":     "SUP-003",
		"status":        "Resolved",
		"root_cause":    "battery",
		"resolution":    "replaced tag",
		"resolved_date": "2025-06-09",
	}})

	card := lastReply(t, h.send(t, "U1", "SUP-003 çözüldü, pil bitmiş, tag değişti"))
	assert.Equal(t, model.ReplyConfirmation, card.Kind)

	st := h.state(t)
	assert.Equal(t, model.PhaseAwaitingConfirmation, st.Phase)
	assert.Empty(t, st.MissingFields)
	assert.Equal(t, "SUP-003", st.Data.String("ticket_id"))

	h.click(t, "U1", model.ActionConfirm, st.Revision)
	require.Len(t, h.exec.calls, 1)
	assert.Equal(t, model.OpUpdateSupport, h.exec.calls[0].Operation)
	assert.Equal(t, []model.AuditOutcome{model.AuditUpdate}, h.audit.outcomes())
}

func TestHandleMessage_UpdateSupportTargetsOpenTicket(t *testing.T) {
	h := newHarness(t)
	h.queries.tickets = map[string]string{"ASM-TR-01": "SUP-002"}
	h.parser.push(model.ParsedIntent{Operation: model.OpUpdateSupport, Data: model.Data{
		"site_id": "Anadolu Sağlık Merkezi",
		"status":  "Scheduled",
	}})

	card := lastReply(t, h.send(t, "U1", "Anadolu için ziyaret planlandı"))
	assert.Equal(t, model.ReplyConfirmation, card.Kind)

	st := h.state(t)
	assert.Equal(t, "ASM-TR-01", st.Data.String("site_id"))
	assert.Equal(t, "SUP-002", st.Data.String("ticket_id"))
}

func TestHandleMessage_UpdateSupportWithoutOpenTicket(t *testing.T) {
	h := newHarness(t)
	h.parser.push(model.ParsedIntent{Operation: model.OpUpdateSupport, Data: model.Data{
		"site_id": "ASM-TR-01",
		"status":  "Resolved",
	}})

	resp := h.send(t, "U1", "ASM sorunu çözüldü")
	assert.Equal(t, say(model.LangTR, msgNoOpenTicket, "ASM-TR-01"), lastReply(t, resp).Text)
	h.noState(t)
	assert.Empty(t, h.exec.calls)
	assert.Empty(t, h.audit.records)
}

func TestHandleMessage_LocalDateLayout(t *testing.T) {
	h := newHarness(t)
	data := supportData()
	data["received_date"] = "09.06.2025"
	h.parser.push(model.ParsedIntent{Operation: model.OpLogSupport, Data: data})

	card := lastReply(t, h.send(t, "U1", "9 haziranda gittim"))
	assert.Equal(t, model.ReplyConfirmation, card.Kind)

	st := h.state(t)
	assert.Equal(t, model.PhaseAwaitingConfirmation, st.Phase)
	assert.Equal(t, "2025-06-09", st.Data.String("received_date"))
}
