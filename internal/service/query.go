package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/store"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

// Query kinds understood by answerQuery.
const (
	querySiteSummary = "site_summary"
	queryOpenIssues  = "open_issues"
	queryStock       = "stock"
)

// answerQuery serves a read-only question. The conversation state is never touched.
func (p *Pipeline) answerQuery(ctx context.Context, log *logger.Logger, lang model.Language, data model.Data) transition {
	if p.deps.Queries == nil {
		return keepState("query_unavailable", model.TextReply(say(lang, msgNotUnderstood)))
	}

	kind := data.String(model.FieldQueryType)
	ref := data.String(model.FieldSiteID)

	var siteID string
	if ref != "" {
		entities, err := p.deps.Directory.Entities(ctx)
		if err != nil {
			log.Error("Failed to load entities", zap.Error(err))
			return keepState("query_error", model.TextReply(say(lang, msgGenericError)))
		}
		found := p.deps.Resolver.Resolve(ref, entities)
		switch len(found) {
		case 0:
			return keepState("query", model.TextReply(say(lang, msgEntityNotFound, ref)))
		case 1:
			siteID = found[0].ID
		default:
			return keepState("query", candidatesPrompt(lang, found))
		}
	}

	var (
		text string
		err  error
	)
	switch kind {
	case queryOpenIssues:
		text, err = p.openIssuesText(ctx, lang, siteID)
	case queryStock:
		text, err = p.stockText(ctx, lang)
	default:
		if siteID == "" {
			return keepState("query", model.TextReply(say(lang, msgQueryNeedsSite)))
		}
		text, err = p.siteText(ctx, lang, siteID)
	}
	if err != nil {
		log.Error("Query failed", zap.String("query_type", kind), zap.Error(err))
		if store.IsNotFound(err) {
			return keepState("query", model.TextReply(say(lang, msgEntityNotFound, siteID)))
		}
		return keepState("query_error", model.TextReply(say(lang, msgGenericError)))
	}
	return keepState("query", model.TextReply(text))
}

func (p *Pipeline) siteText(ctx context.Context, lang model.Language, siteID string) (string, error) {
	sum, err := p.deps.Queries.ReadSiteSummary(ctx, siteID)
	if err != nil {
		return "", err
	}
	d := sum.Site.Data

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* `%s` %s", say(lang, msgSiteHeader), sum.Site.Key, d.String(model.FieldCustomer))
	var where []string
	for _, k := range []string{"city", model.FieldCountry, model.FieldFacilityType, "contract_status"} {
		if v := d.String(k); v != "" {
			where = append(where, v)
		}
	}
	if len(where) > 0 {
		b.WriteString("\n" + strings.Join(where, " · "))
	}
	if len(sum.Hardware) > 0 {
		entries := make([]any, 0, len(sum.Hardware))
		for _, r := range sum.Hardware {
			entries = append(entries, map[string]any(r.Data))
		}
		b.WriteString("\n" + fieldLabel("hardware") + ": " + formatValue(model.Data{model.FieldEntries: entries}, model.FieldEntries))
	}
	b.WriteString("\n" + issuesBlock(lang, sum.OpenIssues))
	return b.String(), nil
}

func (p *Pipeline) openIssuesText(ctx context.Context, lang model.Language, siteID string) (string, error) {
	rows, err := p.deps.Queries.ReadOpenIssues(ctx, siteID)
	if err != nil {
		return "", err
	}
	return issuesBlock(lang, rows), nil
}

func issuesBlock(lang model.Language, rows []store.Row) string {
	if len(rows) == 0 {
		return say(lang, msgNoOpenIssues)
	}
	var b strings.Builder
	b.WriteString(say(lang, msgOpenIssuesHeader))
	for _, r := range rows {
		fmt.Fprintf(&b, "\n• `%s` %s (%s) %s", r.Key, r.EntityID, r.Data.String(model.FieldStatus), r.Data.String("issue_summary"))
	}
	return b.String()
}

func (p *Pipeline) stockText(ctx context.Context, lang model.Language) (string, error) {
	rows, err := p.deps.Queries.ReadStock(ctx)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return say(lang, msgNoStock), nil
	}
	var b strings.Builder
	b.WriteString(say(lang, msgStockHeader))
	for _, r := range rows {
		d := r.Data
		fmt.Fprintf(&b, "\n• %s ×%s, %s (%s)", d.String(model.FieldDeviceType), d.String("qty"), d.String("location"), d.String("condition"))
	}
	return b.String(), nil
}
