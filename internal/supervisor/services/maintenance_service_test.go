// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/deathatlas/atlas/internal/cache"
)

type fakeCheckpointer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCheckpointer) Checkpoint(context.Context) error {
	f.calls.Add(1)
	return f.err
}

func TestMaintenanceServices_Interface(t *testing.T) {
	var _ suture.Service = (*CacheSweeperService)(nil)
	var _ suture.Service = (*CheckpointService)(nil)
	var _ Sweeper = (*cache.TTL[int])(nil)
}

func TestCacheSweeperService_Expires(t *testing.T) {
	c := cache.NewTTL[int](5 * time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	svc := NewCacheSweeperService(c, 5*time.Millisecond)
	if svc.String() != "cache-sweeper" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for c.Stats().Size > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if s := c.Stats(); s.Size != 0 || s.Evictions != 2 {
		t.Errorf("stats = %+v, want size 0 and 2 evictions", s)
	}
}

func TestNewCheckpointService_DefaultInterval(t *testing.T) {
	if got := NewCheckpointService(&fakeCheckpointer{}, 0).interval; got != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", got)
	}
}

func TestCheckpointService_Serve(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ok", nil},
		{"failures are not fatal", errors.New("disk full")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeCheckpointer{err: tt.err}
			svc := NewCheckpointService(db, 5*time.Millisecond)

			ctx, cancel := context.WithCancel(context.Background())
			errCh := make(chan error, 1)
			go func() { errCh <- svc.Serve(ctx) }()

			deadline := time.Now().Add(time.Second)
			for db.calls.Load() < 2 && time.Now().Before(deadline) {
				time.Sleep(2 * time.Millisecond)
			}
			before := db.calls.Load()
			cancel()

			if err := <-errCh; !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
			if before < 2 {
				t.Errorf("ticks = %d, want at least 2", before)
			}
			// One more on shutdown.
			if db.calls.Load() <= before {
				t.Error("no checkpoint on shutdown")
			}
		})
	}
}
