// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package models

import (
	"fmt"
	"strings"
)

// CoordinateKind selects which coordinate of a person record a pin plots.
type CoordinateKind string

const (
	KindDeath   CoordinateKind = "death"
	KindBurial  CoordinateKind = "burial"
	KindMissing CoordinateKind = "missing"
)

// CoordinateKinds lists every kind in a stable order.
var CoordinateKinds = []CoordinateKind{KindDeath, KindBurial, KindMissing}

// ParseCoordinateKind maps user input to a kind. Empty input means death.
func ParseCoordinateKind(s string) (CoordinateKind, error) {
	switch CoordinateKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindDeath:
		return KindDeath, nil
	case KindBurial:
		return KindBurial, nil
	case KindMissing:
		return KindMissing, nil
	}
	return "", fmt.Errorf("unknown coordinate kind %q", s)
}

func (k CoordinateKind) String() string { return string(k) }

// coordPair is one step of a fallback chain: both keys lists must yield a
// value for the step to match, so lat and lng never come from different steps.
type coordPair struct {
	lat []string
	lng []string
}

var genericPair = coordPair{
	lat: []string{"lat", "latitude"},
	lng: []string{"lng", "lon", "long", "longitude"},
}

type coordinateResolver func(RawRow) (lat, lng float64, ok bool)

func chain(pairs ...coordPair) coordinateResolver {
	return func(r RawRow) (float64, float64, bool) {
		for _, p := range pairs {
			lat, okLat := r.Float(p.lat...)
			lng, okLng := r.Float(p.lng...)
			if okLat && okLng {
				return lat, lng, true
			}
		}
		return 0, 0, false
	}
}

var (
	deathPairs = []coordPair{
		{lat: []string{"death_lat", "death_latitude"}, lng: []string{"death_lng", "death_lon", "death_longitude"}},
	}
	burialPairs = []coordPair{
		{lat: []string{"burial_lat", "burial_latitude"}, lng: []string{"burial_lng", "burial_lon", "burial_longitude"}},
		{lat: []string{"grave_lat"}, lng: []string{"grave_lng", "grave_lon"}},
	}
	missingPairs = []coordPair{
		{lat: []string{"last_seen_lat", "last_seen_latitude"}, lng: []string{"last_seen_lng", "last_seen_lon", "last_seen_longitude"}},
		{lat: []string{"missing_lat"}, lng: []string{"missing_lng", "missing_lon"}},
	}
)

var resolvers = map[CoordinateKind]coordinateResolver{
	KindDeath:   chain(append(deathPairs, genericPair)...),
	KindBurial:  chain(append(burialPairs, genericPair)...),
	KindMissing: chain(append(missingPairs, genericPair)...),
}

// storedResolvers drop the generic fallback for every kind but death.
var storedResolvers = map[CoordinateKind]coordinateResolver{
	KindDeath:   resolvers[KindDeath],
	KindBurial:  chain(burialPairs...),
	KindMissing: chain(missingPairs...),
}

// ResolveCoordinates extracts kind's coordinate from r. An unknown kind
// resolves as death.
func ResolveCoordinates(kind CoordinateKind, r RawRow) (lat, lng float64, ok bool) {
	resolve, found := resolvers[kind]
	if !found {
		resolve = resolvers[KindDeath]
	}
	return resolve(r)
}

// ResolveStoredCoordinates is ResolveCoordinates for ingest: only death
// falls back to the generic lat/lng keys.
func ResolveStoredCoordinates(kind CoordinateKind, r RawRow) (lat, lng float64, ok bool) {
	resolve, found := storedResolvers[kind]
	if !found {
		return 0, 0, false
	}
	return resolve(r)
}
