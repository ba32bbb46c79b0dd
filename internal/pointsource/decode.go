// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package pointsource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/metrics"
	"github.com/deathatlas/atlas/internal/models"
)

const (
	// maxErrorBodySize bounds how much of an error body is kept for logs.
	maxErrorBodySize = 4 * 1024

	// maxBodySize bounds a points response.
	maxBodySize = 64 << 20
)

// ErrHTMLBody is returned when a source answers with an HTML page.
var ErrHTMLBody = errors.New("response body is HTML, not JSON")

// envelopeKeys are the object fields that may wrap the row array.
var envelopeKeys = []string{"points", "data", "results", "rows"}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

func decodePoints(resp *http.Response, kind models.CoordinateKind) ([]models.GeoPoint, error) {
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); strings.Contains(ct, "text/html") {
		return nil, ErrHTMLBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return DecodePoints(body, kind)
}

// DecodePoints converts a Point Source body into valid points. Invalid rows
// are dropped and counted.
func DecodePoints(body []byte, kind models.CoordinateKind) ([]models.GeoPoint, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}
	if trimmed[0] == '<' {
		return nil, ErrHTMLBody
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	rows, err := unwrapRows(doc)
	if err != nil {
		return nil, err
	}

	points := make([]models.GeoPoint, 0, len(rows))
	invalid := 0
	for i, raw := range rows {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			invalid++
			continue
		}
		p, err := models.RawRow(obj).ToGeoPoint(kind, i)
		if err != nil {
			invalid++
			logging.Debug().Err(err).Msg("Dropping point source row")
			continue
		}
		points = append(points, p)
	}
	metrics.RecordInvalidPoints("decode", invalid)
	return points, nil
}

func unwrapRows(doc interface{}) ([]interface{}, error) {
	switch v := doc.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, k := range envelopeKeys {
			inner, ok := v[k]
			if !ok {
				continue
			}
			switch iv := inner.(type) {
			case nil:
				return nil, nil
			case []interface{}, map[string]interface{}:
				return unwrapRows(iv)
			}
		}
		if msg, ok := v["error"]; ok {
			return nil, fmt.Errorf("source reported error: %v", msg)
		}
		return nil, errors.New("object body has no points array")
	}
	return nil, fmt.Errorf("unexpected JSON body of type %T", doc)
}
