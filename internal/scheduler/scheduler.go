// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/deathatlas/atlas/internal/models"
)

// Callbacks receive debounced work. Refresh runs on its own goroutine so a
// newer refresh can supersede it; Refilter calls never overlap.
type Callbacks struct {
	Refresh  func(ctx context.Context, v models.Viewport)
	Refilter func(f models.Filter)
}

// Scheduler debounces viewport and filter changes for one map session.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	cb     Callbacks

	viewport *Debouncer
	filter   *Debouncer

	mu      sync.Mutex
	current models.Filter
	stopped bool

	refilterMu sync.Mutex
	wg         sync.WaitGroup
}

// New creates a scheduler whose refreshes run under a child of ctx.
func New(ctx context.Context, delay time.Duration, cb Callbacks) *Scheduler {
	sctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:      sctx,
		cancel:   cancel,
		cb:       cb,
		viewport: NewDebouncer(delay),
		filter:   NewDebouncer(delay),
	}
}

// ViewportChanged schedules a refresh for v.
func (s *Scheduler) ViewportChanged(v models.Viewport) {
	s.viewport.Trigger(func() { s.dispatchRefresh(v) })
}

// SearchChanged sets the search text and schedules a re-filter.
func (s *Scheduler) SearchChanged(text string) {
	s.mu.Lock()
	s.current.Query = text
	s.mu.Unlock()
	s.filter.Trigger(s.refilter)
}

// FilterChanged replaces the whole filter and schedules a re-filter.
func (s *Scheduler) FilterChanged(f models.Filter) {
	s.mu.Lock()
	s.current = f
	s.mu.Unlock()
	s.filter.Trigger(s.refilter)
}

// Filter returns the latest filter, including changes not yet applied.
func (s *Scheduler) Filter() models.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Flush runs pending work immediately.
func (s *Scheduler) Flush() {
	s.filter.Flush()
	s.viewport.Flush()
}

// Stop drops pending work, cancels the context of running refreshes and
// waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.viewport.Stop()
	s.filter.Stop()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) dispatchRefresh(v models.Viewport) {
	if s.cb.Refresh == nil {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.cb.Refresh(s.ctx, v)
	}()
}

func (s *Scheduler) refilter() {
	if s.cb.Refilter == nil {
		return
	}
	s.refilterMu.Lock()
	defer s.refilterMu.Unlock()
	s.cb.Refilter(s.Filter())
}
