package genstore

import (
	"context"
	"sync"
	"time"
)

type localVersion struct {
	n       uint64
	touched time.Time
}

// LocalGenStore keeps versions in process memory. Tokens it issues are only
// meaningful to clients sharing the same instance.
type LocalGenStore struct {
	mu       sync.RWMutex
	versions map[string]localVersion

	stop context.CancelFunc
	done chan struct{}
}

var _ GenStore = (*LocalGenStore)(nil)

// NewLocalGenStore returns a store that, when both durations are positive,
// drops versions untouched for longer than retention every interval.
func NewLocalGenStore(interval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{versions: make(map[string]localVersion)}
	if interval <= 0 || retention <= 0 {
		return s
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.prune(retention)
			case <-ctx.Done():
				return
			}
		}
	}()
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	v := s.versions[k]
	s.mu.RUnlock()
	return v.n, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	n := s.bumpLocked(k, time.Now())
	s.mu.Unlock()
	return n, nil
}

func (s *LocalGenStore) BumpMany(_ context.Context, ks []string) error {
	now := time.Now()
	s.mu.Lock()
	for _, k := range ks {
		s.bumpLocked(k, now)
	}
	s.mu.Unlock()
	return nil
}

func (s *LocalGenStore) bumpLocked(k string, now time.Time) uint64 {
	v := s.versions[k]
	v.n++
	v.touched = now
	s.versions[k] = v
	return v.n
}

// prune forgets versions untouched for longer than retention. A forgotten
// key restarts at version 0, so retention must outlive any token in use.
func (s *LocalGenStore) prune(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for k, v := range s.versions {
		if v.touched.Before(cutoff) {
			delete(s.versions, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(context.Context) error {
	if s.stop != nil {
		s.stop()
		<-s.done
		s.stop = nil
	}
	return nil
}
