// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/deathatlas/atlas/internal/cache"
	"github.com/deathatlas/atlas/internal/cluster"
	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/metrics"
	"github.com/deathatlas/atlas/internal/models"
)

const (
	// DefaultDetailZoom is the zoom at which cluster taps open the picker.
	DefaultDetailZoom = 16

	// DefaultSameSpotRadius is the same-spot lookup radius in metres.
	DefaultSameSpotRadius = 5.0

	MinSameSpotRadius = 2.0
	MaxSameSpotRadius = 9.0
)

// ActionKind names what a map surface should do after a tap.
type ActionKind string

const (
	ActionRecenterAndZoom ActionKind = "recenter_and_zoom"
	ActionShowPicker      ActionKind = "show_picker"
	ActionShowDetail      ActionKind = "show_detail"
)

// Action is the outcome of a tap or pick.
type Action struct {
	Kind      ActionKind        `json:"kind"`
	MarkerKey string            `json:"marker_key"`
	Lat       float64           `json:"lat"`
	Lng       float64           `json:"lng"`
	Zoom      int               `json:"zoom"`
	Members   []models.GeoPoint `json:"members,omitempty"` // Picker entries
	Records   []models.GeoPoint `json:"records,omitempty"` // Detail entries, tapped record first
	Warning   string            `json:"warning,omitempty"`

	// Err holds the *SameSpotLookupError behind Warning.
	Err error `json:"-"`
}

// State is the interaction state between taps.
type State int

const (
	StateIdle State = iota
	StatePicker
)

func (s State) String() string {
	if s == StatePicker {
		return "picker"
	}
	return "idle"
}

// SameSpotFinder looks up records sharing a coordinate.
type SameSpotFinder interface {
	SameSpot(ctx context.Context, lat, lng, radiusMeters float64, id string) ([]models.GeoPoint, error)
}

// InteractionConfig tunes the tap protocol.
type InteractionConfig struct {
	DetailZoom      int
	SameSpotRadiusM float64
}

func (c InteractionConfig) normalized() InteractionConfig {
	if c.DetailZoom <= 0 || c.DetailZoom > models.MaxZoom {
		c.DetailZoom = DefaultDetailZoom
	}
	switch {
	case c.SameSpotRadiusM <= 0:
		c.SameSpotRadiusM = DefaultSameSpotRadius
	case c.SameSpotRadiusM < MinSameSpotRadius:
		c.SameSpotRadiusM = MinSameSpotRadius
	case c.SameSpotRadiusM > MaxSameSpotRadius:
		c.SameSpotRadiusM = MaxSameSpotRadius
	}
	return c
}

// Interactor runs the tap state machine against a Layer.
type Interactor struct {
	cfg    InteractionConfig
	layer  *Layer
	index  *cache.PointIndex
	finder SameSpotFinder

	mu            sync.Mutex
	state         State
	pickerKey     string
	pickerMembers []models.GeoPoint
}

// NewInteractor creates an interactor. index and finder may be nil.
func NewInteractor(layer *Layer, index *cache.PointIndex, finder SameSpotFinder, cfg InteractionConfig) *Interactor {
	return &Interactor{
		cfg:    cfg.normalized(),
		layer:  layer,
		index:  index,
		finder: finder,
	}
}

// DetailZoom returns the configured picker threshold.
func (it *Interactor) DetailZoom() int { return it.cfg.DetailZoom }

// State returns the current interaction state.
func (it *Interactor) State() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// Dismiss closes an open picker.
func (it *Interactor) Dismiss() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.resetLocked()
}

func (it *Interactor) resetLocked() {
	it.state = StateIdle
	it.pickerKey = ""
	it.pickerMembers = nil
}

// Tap handles a tap on the marker with key at the current zoom.
func (it *Interactor) Tap(ctx context.Context, key string, zoom int) (Action, error) {
	m, ok := it.layer.Lookup(key)
	if !ok {
		return Action{}, fmt.Errorf("tap %q: %w", key, ErrUnknownMarker)
	}
	p := m.Point

	it.mu.Lock()
	it.resetLocked()
	it.mu.Unlock()

	grouped := p.IsCluster || p.IsCentroid()
	switch {
	case grouped && zoom < it.cfg.DetailZoom:
		it.layer.ClearSelection()
		a := Action{
			Kind:      ActionRecenterAndZoom,
			MarkerKey: key,
			Lat:       p.Lat,
			Lng:       p.Lng,
			Zoom:      min(zoom+2, it.cfg.DetailZoom),
		}
		return it.record(a), nil

	case p.IsCluster:
		members := make([]models.GeoPoint, len(p.Members))
		copy(members, p.Members)
		cluster.SortMembers(members)

		it.mu.Lock()
		it.state = StatePicker
		it.pickerKey = key
		it.pickerMembers = members
		it.mu.Unlock()

		it.layer.Select(key)
		a := Action{
			Kind:      ActionShowPicker,
			MarkerKey: key,
			Lat:       p.Lat,
			Lng:       p.Lng,
			Zoom:      zoom,
			Members:   members,
		}
		return it.record(a), nil
	}

	it.layer.Select(key)
	return it.record(it.detail(ctx, key, p, max(zoom, it.cfg.DetailZoom))), nil
}

// Pick selects memberID from the picker open on clusterKey. memberID may
// also be a member's marker key, for members without an ID.
func (it *Interactor) Pick(ctx context.Context, clusterKey, memberID string, zoom int) (Action, error) {
	it.mu.Lock()
	if it.state != StatePicker || it.pickerKey != clusterKey {
		it.mu.Unlock()
		return Action{}, fmt.Errorf("pick in %q: %w", clusterKey, ErrNoPicker)
	}
	var (
		member models.GeoPoint
		found  bool
	)
	for _, m := range it.pickerMembers {
		if (m.ID != "" && m.ID == memberID) || MarkerKey(m) == memberID {
			member, found = m, true
			break
		}
	}
	if !found {
		it.mu.Unlock()
		return Action{}, fmt.Errorf("pick %q in %q: %w", memberID, clusterKey, ErrUnknownMember)
	}
	it.resetLocked()
	it.mu.Unlock()

	a := Action{
		Kind:      ActionShowDetail,
		MarkerKey: clusterKey,
		Lat:       member.Lat,
		Lng:       member.Lng,
		Zoom:      max(zoom, it.cfg.DetailZoom),
		Records:   []models.GeoPoint{member},
	}
	return it.record(a), nil
}

// detail builds ShowDetail for a singleton, gathering same-spot records.
func (it *Interactor) detail(ctx context.Context, key string, p models.GeoPoint, zoom int) Action {
	a := Action{
		Kind:      ActionShowDetail,
		MarkerKey: key,
		Lat:       p.Lat,
		Lng:       p.Lng,
		Zoom:      zoom,
	}
	records, err := it.SameSpot(ctx, p)
	a.Records = records
	if err != nil {
		a.Err = err
		a.Warning = err.Error()
	}
	return a
}

// SameSpot returns p followed by every other record known at p's spot. The
// remote lookup runs only when p is not already in the local index; its
// failure is returned as a *SameSpotLookupError alongside the local result.
func (it *Interactor) SameSpot(ctx context.Context, p models.GeoPoint) ([]models.GeoPoint, error) {
	radius := it.cfg.SameSpotRadiusM
	acc := newRecordSet(p)

	known := false
	if it.index != nil {
		acc.add(it.index.Near(p.Lat, p.Lng, radius)...)
		if p.ID != "" {
			_, known = it.index.Get(p.ID)
		}
	}

	var lookupErr error
	if !known && it.finder != nil {
		remote, err := it.finder.SameSpot(ctx, p.Lat, p.Lng, radius, p.ID)
		metrics.RecordSameSpotLookup(err == nil)
		if err != nil {
			lookupErr = &SameSpotLookupError{ID: p.ID, Lat: p.Lat, Lng: p.Lng, Err: err}
			logging.Ctx(ctx).Warn().Err(err).Str("id", p.ID).Msg("Same-spot lookup failed, showing tapped record only")
		} else {
			acc.add(remote...)
			if it.index != nil {
				it.index.Upsert(remote...)
			}
		}
	}
	return acc.list(), lookupErr
}

func (it *Interactor) record(a Action) Action {
	metrics.TapActions.WithLabelValues(string(a.Kind)).Inc()
	return a
}

// recordSet accumulates records without duplicates, keeping the first one.
type recordSet struct {
	first models.GeoPoint
	seen  map[string]bool
	rest  []models.GeoPoint
}

func newRecordSet(first models.GeoPoint) *recordSet {
	return &recordSet{first: first, seen: map[string]bool{recordID(first): true}}
}

func recordID(p models.GeoPoint) string {
	if p.ID != "" {
		return p.ID
	}
	return MarkerKey(p)
}

func (s *recordSet) add(ps ...models.GeoPoint) {
	for _, p := range ps {
		if p.IsCluster {
			s.add(p.Members...)
			continue
		}
		id := recordID(p)
		if s.seen[id] {
			continue
		}
		s.seen[id] = true
		s.rest = append(s.rest, p)
	}
}

func (s *recordSet) list() []models.GeoPoint {
	cluster.SortMembers(s.rest)
	return append([]models.GeoPoint{s.first}, s.rest...)
}
