// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package mapview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deathatlas/atlas/internal/cache"
	"github.com/deathatlas/atlas/internal/cluster"
	"github.com/deathatlas/atlas/internal/fetch"
	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/pointsource"
	"github.com/deathatlas/atlas/internal/render"
	"github.com/deathatlas/atlas/internal/scheduler"
	"github.com/deathatlas/atlas/internal/tile"
)

// Status is the non-blocking banner state of a session.
type Status struct {
	Generation     uint64   `json:"generation"`
	TileZoom       int      `json:"tile_zoom"`
	Tiles          int      `json:"tiles"`
	FailedTiles    int      `json:"failed_tiles"`
	RetryableTiles int      `json:"retryable_tiles,omitempty"` // Failed tiles a later pan may load
	CacheHits      int      `json:"cache_hits"`
	Points         int      `json:"points"`
	Records        int      `json:"records"`
	Warnings       []string `json:"warnings,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
}

// Banner returns the user-facing text for partial failures, or "".
func (s Status) Banner() string {
	if s.FailedTiles == 0 {
		return ""
	}
	msg := fmt.Sprintf("%d of %d map areas could not be loaded", s.FailedTiles, s.Tiles)
	switch {
	case s.RetryableTiles == s.FailedTiles:
		msg += ", retrying on the next move"
	case s.RetryableTiles > 0:
		msg += fmt.Sprintf(", %d retrying on the next move", s.RetryableTiles)
	}
	return msg
}

// RenderablePoints is what a map surface draws.
type RenderablePoints struct {
	Markers  []render.Marker `json:"markers"`
	Viewport models.Viewport `json:"viewport"`
	Zoom     int             `json:"zoom"`
	Filter   models.Filter   `json:"filter"`
	Status   Status          `json:"status"`
	Changed  bool            `json:"changed"`
}

// Options configures a Session.
type Options struct {
	Source      fetch.TileSource
	Finder      render.SameSpotFinder // Optional remote same-spot lookup
	Tiles       *cache.TileCache      // Shared tile cache; nil creates a private one
	Index       *cache.PointIndex     // Nil creates a private index
	Fetch       fetch.Config
	Interaction render.InteractionConfig
	Debounce    time.Duration

	// OnUpdate receives the result of every debounced refresh and refilter
	// that committed. It is never called concurrently for one session.
	OnUpdate func(RenderablePoints)
}

// Session is one map view.
type Session struct {
	id         string
	coord      *fetch.Coordinator
	index      *cache.PointIndex
	layer      *render.Layer
	interactor *render.Interactor
	sched      *scheduler.Scheduler
	onUpdate   func(RenderablePoints)

	mu       sync.Mutex
	viewport models.Viewport
	zoom     int
	pending  int // Zoom reported with the latest ViewportChanged, -1 to derive
	points   []models.GeoPoint
	filter   models.Filter
	status   Status
	hasView  bool

	updateMu  sync.Mutex
	published uint64 // Generation of the last result handed to OnUpdate
}

// New creates a session whose scheduled refreshes run under ctx.
func New(ctx context.Context, opts Options) *Session {
	index := opts.Index
	if index == nil {
		index = cache.NewPointIndex(cache.DefaultIndexCellMeters)
	}
	layer := render.NewLayer()
	s := &Session{
		id:         uuid.New().String(),
		coord:      fetch.New(opts.Source, opts.Tiles, opts.Fetch),
		index:      index,
		layer:      layer,
		interactor: render.NewInteractor(layer, index, opts.Finder, opts.Interaction),
		onUpdate:   opts.OnUpdate,
		pending:    -1,
	}
	s.sched = scheduler.New(ctx, opts.Debounce, scheduler.Callbacks{
		Refresh:  s.scheduledRefresh,
		Refilter: s.scheduledRefilter,
	})
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Index returns the session's point index.
func (s *Session) Index() *cache.PointIndex { return s.index }

// Refresh fetches v at the zoom its span implies and commits the result.
func (s *Session) Refresh(ctx context.Context, v models.Viewport) (RenderablePoints, error) {
	return s.RefreshAt(ctx, v, v.ZoomLevel())
}

// RefreshAt fetches v at an explicit map zoom and commits the result. It
// returns fetch.ErrRefreshSuperseded when a newer refresh started first.
func (s *Session) RefreshAt(ctx context.Context, v models.Viewport, zoom int) (RenderablePoints, error) {
	if err := v.Validate(); err != nil {
		return RenderablePoints{}, err
	}
	res, err := s.coord.Refresh(ctx, v, zoom)
	if err != nil {
		return RenderablePoints{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.coord.IsCurrent(res.Generation) {
		return RenderablePoints{}, fetch.ErrRefreshSuperseded
	}

	s.pruneLocked(res)
	s.index.Upsert(res.Points...)
	s.points = res.Points
	s.viewport = v
	s.zoom = zoom
	s.hasView = true

	st := Status{
		Generation:  res.Generation,
		TileZoom:    res.Zoom,
		Tiles:       len(res.Tiles),
		FailedTiles: res.FailedTiles,
		CacheHits:   res.CacheHits,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, f := range res.Failures {
		if pointsource.IsRetryable(f) {
			st.RetryableTiles++
		}
	}
	if b := st.Banner(); b != "" {
		st.Warnings = append(st.Warnings, b)
	}
	s.status = st
	return s.renderLocked(), nil
}

// pruneLocked drops indexed records that a loaded tile no longer returns.
// Failed tiles and tiles that came back as server centroids are left alone.
func (s *Session) pruneLocked(res *fetch.Result) {
	skip := make(map[tile.Key]struct{}, len(res.Failures))
	for _, f := range res.Failures {
		skip[f.Tile] = struct{}{}
	}
	keep := make(map[string]struct{}, len(res.Points))
	for _, p := range res.Points {
		switch {
		case p.IsCentroid():
			skip[tile.PointToTile(p.Lat, p.Lng, res.Zoom)] = struct{}{}
		case p.IsCluster:
			for _, m := range p.Members {
				keep[m.ID] = struct{}{}
			}
		default:
			keep[p.ID] = struct{}{}
		}
	}
	for _, k := range res.Tiles {
		if _, ok := skip[k]; ok {
			continue
		}
		s.index.Prune(k.Bounds(), keep)
	}
}

// ApplyFilter replaces the filter and re-clusters from memory.
func (s *Session) ApplyFilter(f models.Filter) RenderablePoints {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	return s.renderLocked()
}

// visibleLocked returns the points the current filter lets through. An empty
// filter shows the last refresh as fetched, centroids included. A non-empty
// filter searches every indexed record inside the viewport; centroids carry
// no text and never match.
func (s *Session) visibleLocked() []models.GeoPoint {
	if s.filter.IsEmpty() {
		return s.points
	}
	if !s.hasView {
		return nil
	}
	return s.index.InBounds(s.viewport.Bounds(), s.filter)
}

func (s *Session) renderLocked() RenderablePoints {
	visible := s.visibleLocked()
	clustered := cluster.Cluster(visible)
	markers, changed := s.layer.Update(clustered)

	s.status.Points = len(clustered)
	s.status.Records = cluster.Total(clustered)

	st := s.status
	st.Warnings = append([]string(nil), s.status.Warnings...)
	return RenderablePoints{
		Markers:  markers,
		Viewport: s.viewport,
		Zoom:     s.zoom,
		Filter:   s.filter,
		Status:   st,
		Changed:  changed,
	}
}

// Snapshot returns the current state without recomputing anything.
func (s *Session) Snapshot() RenderablePoints {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Warnings = append([]string(nil), s.status.Warnings...)
	return RenderablePoints{
		Markers:  s.layer.Markers(),
		Viewport: s.viewport,
		Zoom:     s.zoom,
		Filter:   s.filter,
		Status:   st,
	}
}

// Tap handles a tap on the marker with key at the session's zoom.
func (s *Session) Tap(ctx context.Context, key string) (render.Action, error) {
	a, err := s.interactor.Tap(ctx, key, s.currentZoom())
	if err != nil {
		return a, err
	}
	s.noteWarning(a)
	return a, nil
}

// Pick opens the detail of one member of the picker shown for clusterKey.
func (s *Session) Pick(ctx context.Context, clusterKey, memberID string) (render.Action, error) {
	return s.interactor.Pick(ctx, clusterKey, memberID, s.currentZoom())
}

// Dismiss closes the picker or detail without changing the viewport.
func (s *Session) Dismiss() {
	s.interactor.Dismiss()
	s.layer.ClearSelection()
}

// FlyTo schedules a refresh of the viewport a RecenterAndZoom action
// targets, keeping the current aspect ratio. It reports whether a
// refresh was scheduled.
func (s *Session) FlyTo(a render.Action) bool {
	if a.Kind != render.ActionRecenterAndZoom {
		return false
	}
	s.mu.Lock()
	aspect := 1.0
	if s.viewport.LngDelta > 0 {
		aspect = s.viewport.LatDelta / s.viewport.LngDelta
	}
	s.mu.Unlock()
	s.ViewportChangedAt(models.ViewportAt(a.Lat, a.Lng, a.Zoom, aspect), a.Zoom)
	return true
}

// ViewportChanged reports a pan or zoom; the refresh is debounced.
func (s *Session) ViewportChanged(v models.Viewport) {
	s.ViewportChangedAt(v, -1)
}

// ViewportChangedAt is ViewportChanged for surfaces that know their zoom.
// A negative zoom derives it from the viewport span.
func (s *Session) ViewportChangedAt(v models.Viewport, zoom int) {
	s.mu.Lock()
	s.pending = zoom
	s.mu.Unlock()
	s.sched.ViewportChanged(v)
}

// SearchChanged reports new search text; the refilter is debounced.
func (s *Session) SearchChanged(text string) { s.sched.SearchChanged(text) }

// FilterChanged reports a new filter; the refilter is debounced.
func (s *Session) FilterChanged(f models.Filter) { s.sched.FilterChanged(f) }

// Reload schedules a refresh of the current viewport, used after the
// shared tile cache was invalidated.
func (s *Session) Reload() {
	s.mu.Lock()
	v, zoom, ok := s.viewport, s.zoom, s.hasView
	s.mu.Unlock()
	if ok {
		s.ViewportChangedAt(v, zoom)
	}
}

// Flush runs pending debounced work immediately.
func (s *Session) Flush() { s.sched.Flush() }

// Close stops the scheduler and abandons any in-flight refresh.
func (s *Session) Close() {
	s.coord.Cancel()
	s.sched.Stop()
}

func (s *Session) currentZoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

func (s *Session) noteWarning(a render.Action) {
	if a.Warning == "" {
		return
	}
	s.mu.Lock()
	s.status.Warnings = append(s.status.Warnings, a.Warning)
	s.mu.Unlock()
}

func (s *Session) scheduledRefresh(ctx context.Context, v models.Viewport) {
	s.mu.Lock()
	zoom := s.pending
	s.mu.Unlock()
	if zoom < 0 {
		zoom = v.ZoomLevel()
	}

	out, err := s.RefreshAt(ctx, v, zoom)
	if err != nil {
		if errors.Is(err, fetch.ErrRefreshSuperseded) || errors.Is(err, context.Canceled) {
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", s.id).Msg("map refresh failed")
		return
	}
	s.publish(out)
}

func (s *Session) scheduledRefilter(f models.Filter) {
	s.publish(s.ApplyFilter(f))
}

func (s *Session) publish(out RenderablePoints) {
	if s.onUpdate == nil {
		return
	}
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	if out.Status.Generation < s.published {
		return
	}
	s.published = out.Status.Generation
	s.onUpdate(out)
}
