package store

import (
	"context"
	"fmt"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

// SiteSummary is the read-only overview of one site.
type SiteSummary struct {
	Site       Row
	Hardware   []Row
	OpenIssues []Row
}

// ReadSiteSummary loads the site record with its hardware and open tickets.
func (s *Store) ReadSiteSummary(ctx context.Context, siteID string) (SiteSummary, error) {
	site, err := s.ReadRecord(ctx, model.CollectionSites, siteID)
	if err != nil {
		return SiteSummary{}, fmt.Errorf("site %s: %w", siteID, err)
	}
	hardware, err := s.ReadRecords(ctx, model.CollectionHardware, siteID)
	if err != nil {
		return SiteSummary{}, err
	}
	open, err := s.ReadOpenIssues(ctx, siteID)
	if err != nil {
		return SiteSummary{}, err
	}
	return SiteSummary{Site: site, Hardware: hardware, OpenIssues: open}, nil
}

// ReadOpenIssues returns unresolved tickets, for one site or all of them.
func (s *Store) ReadOpenIssues(ctx context.Context, siteID string) ([]Row, error) {
	rows, err := s.ReadRecords(ctx, model.CollectionSupportLog, siteID)
	if err != nil {
		return nil, err
	}
	open := rows[:0]
	for _, r := range rows {
		if !IsResolved(r) {
			open = append(open, r)
		}
	}
	return open, nil
}

// FindOpenTicket returns the key of the newest unresolved ticket of a site,
// or ErrNotFound.
func (s *Store) FindOpenTicket(ctx context.Context, siteID string) (string, error) {
	row, err := s.latestOpenTicket(ctx, s.db, siteID)
	if err != nil {
		return "", err
	}
	return row.Key, nil
}

// ReadStock returns every stock row.
func (s *Store) ReadStock(ctx context.Context) ([]Row, error) {
	return s.ReadRecords(ctx, model.CollectionStock, "")
}
