// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/metrics"
	"github.com/deathatlas/atlas/internal/models"
)

// Coordinate is one stored latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Record is one death_locations row.
type Record struct {
	ID          string      `json:"id"`
	Title       string      `json:"title,omitempty"`
	Category    string      `json:"category,omitempty"`
	Date        string      `json:"date,omitempty"`
	Death       *Coordinate `json:"death,omitempty"`
	Burial      *Coordinate `json:"burial,omitempty"`
	LastSeen    *Coordinate `json:"last_seen,omitempty"`
	SourceURL   string      `json:"source_url,omitempty"`
	WikidataID  string      `json:"wikidata_id,omitempty"`
	Confidence  *float64    `json:"confidence,omitempty"`
	CoordSource string      `json:"coord_source,omitempty"`
	Published   bool        `json:"published"`
}

// Coordinate returns the record's coordinate of kind, or nil.
func (r Record) Coordinate(kind models.CoordinateKind) *Coordinate {
	switch kind {
	case models.KindBurial:
		return r.Burial
	case models.KindMissing:
		return r.LastSeen
	default:
		return r.Death
	}
}

var publishedKeys = []string{"published", "is_published", "visible"}

// RecordFromRow converts an ingest row. Each kind takes its own field
// chain; only death falls back to plain lat/lng. Pairs that resolve out of
// range are dropped; a row with no usable pair or no ID is rejected.
func RecordFromRow(row models.RawRow, index int) (Record, error) {
	desc := row.Describe()
	if desc.ID == "" {
		return Record{}, &models.InvalidPointError{Index: index, Reason: "missing id"}
	}

	rec := Record{
		ID:        desc.ID,
		Title:     desc.Title,
		Category:  desc.Category,
		Date:      desc.Date,
		Published: true,
	}
	if m := desc.Meta; m != nil {
		rec.SourceURL = m.SourceURL
		rec.WikidataID = m.WikidataID
		rec.CoordSource = m.CoordSource
		if m.Confidence != 0 {
			c := m.Confidence
			rec.Confidence = &c
		}
	}
	if b, ok := row.Bool(publishedKeys...); ok {
		rec.Published = b
	}

	found := false
	for _, kind := range models.CoordinateKinds {
		lat, lng, ok := models.ResolveStoredCoordinates(kind, row)
		if !ok {
			continue
		}
		if err := (models.GeoPoint{ID: rec.ID, Lat: lat, Lng: lng}).Validate(); err != nil {
			continue
		}
		c := &Coordinate{Lat: lat, Lng: lng}
		switch kind {
		case models.KindDeath:
			rec.Death = c
		case models.KindBurial:
			rec.Burial = c
		case models.KindMissing:
			rec.LastSeen = c
		}
		found = true
	}
	if !found {
		return Record{}, &models.InvalidPointError{Index: index, ID: rec.ID, Reason: "no valid coordinates"}
	}
	return rec, nil
}

// RejectedRow describes an ingest row that was dropped.
type RejectedRow struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// IngestResult summarizes one Ingest call.
type IngestResult struct {
	Received int           `json:"received"`
	Accepted int           `json:"accepted"`
	Rejected []RejectedRow `json:"rejected,omitempty"`
}

// Ingest converts rows and upserts the valid ones. Invalid rows are
// reported, not fatal.
func (db *DB) Ingest(ctx context.Context, rows []models.RawRow) (IngestResult, error) {
	res := IngestResult{Received: len(rows)}
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec, err := RecordFromRow(row, i)
		if err != nil {
			var ipe *models.InvalidPointError
			if errors.As(err, &ipe) {
				res.Rejected = append(res.Rejected, RejectedRow{Index: ipe.Index, ID: ipe.ID, Reason: ipe.Reason})
				continue
			}
			return res, err
		}
		records = append(records, rec)
	}
	if len(res.Rejected) > 0 {
		metrics.RecordInvalidPoints("ingest", len(res.Rejected))
	}
	if len(records) == 0 {
		return res, nil
	}

	n, err := db.Upsert(ctx, records)
	res.Accepted = n
	return res, err
}

const upsertSQL = `
	INSERT INTO death_locations (
		id, title, category, death_date,
		death_lat, death_lng, burial_lat, burial_lng, last_seen_lat, last_seen_lng,
		source_url, wikidata_id, confidence, coord_source, published, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		category = EXCLUDED.category,
		death_date = EXCLUDED.death_date,
		death_lat = EXCLUDED.death_lat,
		death_lng = EXCLUDED.death_lng,
		burial_lat = EXCLUDED.burial_lat,
		burial_lng = EXCLUDED.burial_lng,
		last_seen_lat = EXCLUDED.last_seen_lat,
		last_seen_lng = EXCLUDED.last_seen_lng,
		source_url = EXCLUDED.source_url,
		wikidata_id = EXCLUDED.wikidata_id,
		confidence = EXCLUDED.confidence,
		coord_source = EXCLUDED.coord_source,
		published = EXCLUDED.published,
		updated_at = EXCLUDED.updated_at`

const maxUpsertAttempts = 3

// Upsert writes records in one transaction, replacing rows with the same
// ID. Within a batch the last record for an ID wins. Write conflicts are
// retried with a short backoff.
func (db *DB) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, ErrEmptyBatch
	}
	batch := dedupeRecords(records)

	var err error
	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		err = db.upsertOnce(ctx, batch)
		if err == nil || !isTransactionConflict(err) {
			break
		}
		logging.Ctx(ctx).Debug().Int("attempt", attempt).Err(err).Msg("Upsert conflict, retrying")
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	if err != nil {
		return 0, err
	}
	return len(batch), nil
}

func (db *DB) upsertOnce(ctx context.Context, batch []Record) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("upsert", time.Since(start), err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", classifyError(err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, db.bind(upsertSQL))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", classifyError(err))
	}
	defer closeWithLog(stmt, "prepared statement")

	now := time.Now().UTC()
	for _, r := range batch {
		dLat, dLng := nullPair(r.Death)
		bLat, bLng := nullPair(r.Burial)
		sLat, sLng := nullPair(r.LastSeen)
		conf := sql.NullFloat64{}
		if r.Confidence != nil {
			conf = sql.NullFloat64{Float64: *r.Confidence, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Title, r.Category, r.Date,
			dLat, dLng, bLat, bLng, sLat, sLng,
			r.SourceURL, r.WikidataID, conf, r.CoordSource, r.Published, now,
		); err != nil {
			return fmt.Errorf("failed to upsert %q: %w", r.ID, classifyError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", classifyError(err))
	}
	return nil
}

func nullPair(c *Coordinate) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lng, Valid: true}
}

func dedupeRecords(records []Record) []Record {
	pos := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// Delete removes the record with id and reports whether it existed.
func (db *DB) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, db.bind("DELETE FROM death_locations WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %q: %w", id, classifyError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}
