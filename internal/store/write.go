package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/merge"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

const ticketPrefix = "SUP-"

// WriteRequest is a confirmed operation handed to Execute.
type WriteRequest struct {
	Operation model.Operation
	Data      model.Data
	User      string
}

// Execute applies a confirmed write in one transaction.
func (s *Store) Execute(ctx context.Context, req WriteRequest) (model.WriteResult, error) {
	ctx, span := otel.Tracer("store").Start(ctx, "store.execute")
	defer span.End()
	span.SetAttributes(attribute.String("operation", string(req.Operation)))

	info, ok := req.Operation.Info()
	if !ok {
		return model.WriteResult{}, fmt.Errorf("operation %q is not a write", req.Operation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WriteResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	data := payload(req.Data)
	var res model.WriteResult
	switch req.Operation {
	case model.OpLogSupport:
		res, err = s.logSupport(ctx, tx, data)
	case model.OpUpdateSupport:
		res, err = s.updateSupport(ctx, tx, data)
	case model.OpCreateSite:
		res, err = s.createSite(ctx, tx, data)
	case model.OpUpdateSite:
		res, err = s.mergeRecord(ctx, tx, info.Collection, data.String(model.FieldSiteID), data.String(model.FieldSiteID), data, false)
	case model.OpUpdateImplementation:
		res, err = s.mergeRecord(ctx, tx, info.Collection, data.String(model.FieldSiteID), data.String(model.FieldSiteID), data, true)
	case model.OpUpdateHardware:
		res, err = s.updateHardware(ctx, tx, data)
	case model.OpUpdateStock:
		key := strings.Join([]string{data.String("location"), data.String(model.FieldDeviceType), data.String("condition")}, "/")
		res, err = s.mergeRecord(ctx, tx, info.Collection, key, "", data, true)
	}
	if err != nil {
		span.RecordError(err)
		return model.WriteResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.WriteResult{}, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("Record written",
		zap.String("operation", string(req.Operation)),
		zap.String("collection", string(res.Collection)),
		zap.String("entity_id", res.EntityID),
		zap.String("record_key", res.RecordKey),
		zap.String("user_id", req.User),
	)
	return res, nil
}

// payload drops bookkeeping keys and empty values.
func payload(data model.Data) model.Data {
	out := model.Data{}
	for k, v := range data {
		if model.IsInternalKey(k) || model.IsEmpty(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Store) logSupport(ctx context.Context, tx *sql.Tx, data model.Data) (model.WriteResult, error) {
	siteID := data.String(model.FieldSiteID)
	ticketID, err := s.nextTicketID(ctx, tx)
	if err != nil {
		return model.WriteResult{}, err
	}
	data[model.FieldTicketID] = ticketID
	if err := s.insert(ctx, tx, model.CollectionSupportLog, ticketID, siteID, data); err != nil {
		return model.WriteResult{}, err
	}
	return model.WriteResult{Collection: model.CollectionSupportLog, EntityID: siteID, RecordKey: ticketID, Rows: 1}, nil
}

func (s *Store) nextTicketID(ctx context.Context, tx *sql.Tx) (string, error) {
	rows, err := tx.QueryContext(ctx, s.rebind(`SELECT record_key FROM records WHERE collection = ?`), string(model.CollectionSupportLog))
	if err != nil {
		return "", fmt.Errorf("query ticket ids: %w", err)
	}
	defer rows.Close()

	highest := 0
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return "", fmt.Errorf("scan ticket id: %w", err)
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(key, ticketPrefix)); err == nil && n > highest {
			highest = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", ticketPrefix, highest+1), nil
}

// updateSupport targets the named ticket, or the newest unresolved ticket of
// the site when no ticket id is given.
func (s *Store) updateSupport(ctx context.Context, tx *sql.Tx, data model.Data) (model.WriteResult, error) {
	var target Row
	if id := data.String(model.FieldTicketID); id != "" {
		rows, err := s.queryRows(ctx, tx, "collection = ? AND record_key = ?", string(model.CollectionSupportLog), id)
		if err != nil {
			return model.WriteResult{}, err
		}
		if len(rows) == 0 {
			return model.WriteResult{}, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
		}
		target = rows[0]
	} else {
		var err error
		if target, err = s.latestOpenTicket(ctx, tx, data.String(model.FieldSiteID)); err != nil {
			return model.WriteResult{}, err
		}
	}

	merged := merge.Overlay(target.Data, data)
	merged[model.FieldTicketID] = target.Key
	if err := s.update(ctx, tx, model.CollectionSupportLog, target.Key, target.EntityID, merged); err != nil {
		return model.WriteResult{}, err
	}
	return model.WriteResult{Collection: model.CollectionSupportLog, EntityID: target.EntityID, RecordKey: target.Key, Rows: 1}, nil
}

func (s *Store) latestOpenTicket(ctx context.Context, q queryer, siteID string) (Row, error) {
	rows, err := s.queryRows(ctx, q, "collection = ? AND entity_id = ? ORDER BY created_at DESC, record_key DESC",
		string(model.CollectionSupportLog), siteID)
	if err != nil {
		return Row{}, err
	}
	for _, r := range rows {
		if !IsResolved(r) {
			return r, nil
		}
	}
	return Row{}, fmt.Errorf("open ticket for %s: %w", siteID, ErrNotFound)
}

// IsResolved reports whether a support row is closed.
func IsResolved(r Row) bool {
	return strings.EqualFold(r.Data.String(model.FieldStatus), "Resolved")
}

func (s *Store) createSite(ctx context.Context, tx *sql.Tx, data model.Data) (model.WriteResult, error) {
	siteID := data.String(model.FieldSiteID)
	if siteID == "" {
		rows, err := s.queryRows(ctx, tx, "collection = ?", string(model.CollectionSites))
		if err != nil {
			return model.WriteResult{}, err
		}
		existing := make([]string, len(rows))
		for i, r := range rows {
			existing[i] = r.Key
		}
		siteID = model.NextSiteID(data.String(model.FieldCustomer), data.String(model.FieldCountry), existing)
		data[model.FieldSiteID] = siteID
	}

	rows, err := s.queryRows(ctx, tx, "collection = ? AND record_key = ?", string(model.CollectionSites), siteID)
	if err != nil {
		return model.WriteResult{}, err
	}
	if len(rows) > 0 {
		return model.WriteResult{}, fmt.Errorf("site %s: %w", siteID, ErrDuplicate)
	}
	if err := s.insert(ctx, tx, model.CollectionSites, siteID, siteID, data); err != nil {
		return model.WriteResult{}, err
	}
	return model.WriteResult{Collection: model.CollectionSites, EntityID: siteID, RecordKey: siteID, Rows: 1}, nil
}

// updateHardware stores one row per device type of the site.
func (s *Store) updateHardware(ctx context.Context, tx *sql.Tx, data model.Data) (model.WriteResult, error) {
	siteID := data.String(model.FieldSiteID)
	entries := data.Entries(model.FieldEntries)
	if len(entries) == 0 {
		single := data.Clone()
		delete(single, model.FieldEntries)
		entries = []model.Data{single}
	}

	res := model.WriteResult{Collection: model.CollectionHardware, EntityID: siteID}
	for _, entry := range entries {
		row := payload(entry)
		row[model.FieldSiteID] = siteID
		key := siteID + "/" + row.String(model.FieldDeviceType)
		if _, err := s.mergeRecord(ctx, tx, model.CollectionHardware, key, siteID, row, true); err != nil {
			return model.WriteResult{}, err
		}
		res.Rows++
		if res.RecordKey == "" {
			res.RecordKey = key
		}
	}
	return res, nil
}

// mergeRecord overlays data onto an existing row. A missing row is created
// when create is set and reported as ErrNotFound otherwise.
func (s *Store) mergeRecord(ctx context.Context, tx *sql.Tx, collection model.Collection, key, entityID string, data model.Data, create bool) (model.WriteResult, error) {
	res := model.WriteResult{Collection: collection, EntityID: entityID, RecordKey: key, Rows: 1}
	rows, err := s.queryRows(ctx, tx, "collection = ? AND record_key = ?", string(collection), key)
	if err != nil {
		return model.WriteResult{}, err
	}
	if len(rows) == 0 {
		if !create {
			return model.WriteResult{}, fmt.Errorf("%s %s: %w", collection, key, ErrNotFound)
		}
		return res, s.insert(ctx, tx, collection, key, entityID, data)
	}
	return res, s.update(ctx, tx, collection, key, entityID, merge.Overlay(rows[0].Data, data))
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, collection model.Collection, key, entityID string, data model.Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO records (collection, record_key, entity_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`), string(collection), key, entityID, string(raw), now, now)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, collection model.Collection, key, entityID string, data model.Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE records SET entity_id = ?, data = ?, updated_at = ?
		WHERE collection = ? AND record_key = ?`), entityID, string(raw), s.now().UTC(), string(collection), key)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", collection, key, ErrNotFound)
	}
	return nil
}

// IsNotFound reports whether err means the targeted record is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
