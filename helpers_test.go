package main

import (
	"sync"
	"time"
)

// fakeConn records everything emitted to it, standing in for a websocket
// client in unit tests.
type fakeConn struct {
	mu   sync.Mutex
	msgs []any
}

func (f *fakeConn) Emit(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, v)
}

func (f *fakeConn) snapshot() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.msgs...)
}

func countOf[T any](f *fakeConn) int {
	n := 0
	for _, m := range f.snapshot() {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

func allOf[T any](f *fakeConn) []T {
	var out []T
	for _, m := range f.snapshot() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func lastOf[T any](f *fakeConn) (T, bool) {
	var out T
	found := false
	for _, m := range f.snapshot() {
		if v, ok := m.(T); ok {
			out = v
			found = true
		}
	}
	return out, found
}

func roundResolved(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.Round != nil && room.Round.Resolved
}

func testConfig() *Config {
	return &Config{
		codeLength:    6,
		resultDelay:   20 * time.Millisecond,
		roomTimeout:   time.Hour,
		sweepInterval: time.Hour,
	}
}

func newTestRegistry(games ...Game) *Registry {
	if len(games) == 0 {
		games = defaultGames()
	}
	return NewRegistry(testConfig(), newListProvider(), games...)
}
