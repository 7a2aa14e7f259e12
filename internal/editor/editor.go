package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// DefaultDebounce is the quiet period after the last edit before a save
const DefaultDebounce = time.Second

// State is the per-key save state
type State string

const (
	StateClean  State = "clean"
	StateDirty  State = "dirty"
	StateSaving State = "saving"
)

// SaveFunc persists one value
type SaveFunc[K comparable, V any] func(ctx context.Context, key K, value V) error

// Options configures an Editor
type Options[K comparable] struct {
	Debounce time.Duration
	Clock    Clock
	// OnError is called after a debounced save fails; the key stays dirty
	OnError func(key K, err error)
}

type entry[V any] struct {
	value   V
	state   State
	version uint64
	saved   uint64
	timer   Timer
	timerID uint64
	saving  bool
	pending bool
	lastErr error
}

// Editor keeps a local draft per key and saves each key after a quiet period.
// Saves of one key never overlap; an edit made during a save is saved afterwards.
type Editor[K comparable, V any] struct {
	save     SaveFunc[K, V]
	debounce time.Duration
	clock    Clock
	onError  func(K, error)
	logger   *logger.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[K]*entry[V]
	timers  uint64
}

// New creates an editor
func New[K comparable, V any](save SaveFunc[K, V], opts Options[K], log *logger.Logger) *Editor[K, V] {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = RealClock
	}

	e := &Editor[K, V]{
		save:     save,
		debounce: opts.Debounce,
		clock:    opts.Clock,
		onError:  opts.OnError,
		logger:   log.Named("editor"),
		entries:  make(map[K]*entry[V]),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Load sets the value mirrored from the store. Keys with unsaved edits are left alone.
func (e *Editor[K, V]) Load(key K, value V) {
	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.entries[key]
	if !ok {
		e.entries[key] = &entry[V]{value: value, state: StateClean}
		return
	}
	if en.state == StateClean {
		en.value = value
	}
}

// Set replaces the draft value and restarts the key's timer
func (e *Editor[K, V]) Set(key K, value V) {
	e.Update(key, func(V) V { return value })
}

// Update applies fn to the current draft value and restarts the key's timer
func (e *Editor[K, V]) Update(key K, fn func(V) V) V {
	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.entries[key]
	if !ok {
		en = &entry[V]{state: StateClean}
		e.entries[key] = en
	}

	en.value = fn(en.value)
	en.version++
	if !en.saving {
		en.state = StateDirty
	}

	if en.timer != nil {
		en.timer.Stop()
	}
	e.timers++
	id := e.timers
	en.timerID = id
	en.timer = e.clock.AfterFunc(e.debounce, func() { e.fire(key, id) })

	return en.value
}

// Get returns the draft value and its state
func (e *Editor[K, V]) Get(key K) (V, State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.entries[key]
	if !ok {
		var zero V
		return zero, "", false
	}
	return en.value, en.state, true
}

// States returns the state of every key
func (e *Editor[K, V]) States() map[K]State {
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make(map[K]State, len(e.entries))
	for k, en := range e.entries {
		states[k] = en.state
	}
	return states
}

// Dirty reports whether any key has unsaved edits
func (e *Editor[K, V]) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, en := range e.entries {
		if en.version != en.saved {
			return true
		}
	}
	return false
}

// Discard drops a key after any in-flight save of it has finished
func (e *Editor[K, V]) Discard(key K) {
	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.entries[key]
	if !ok {
		return
	}
	if en.timer != nil {
		en.timer.Stop()
		en.timer = nil
	}
	en.timerID = 0
	for en.saving {
		e.cond.Wait()
	}
	delete(e.entries, key)
}

// Flush saves key now if it has unsaved edits, waiting for an in-flight save first
func (e *Editor[K, V]) Flush(ctx context.Context, key K) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.entries[key]
	if !ok {
		return nil
	}
	if en.timer != nil {
		en.timer.Stop()
		en.timer = nil
		en.timerID = 0
	}
	for en.saving {
		e.cond.Wait()
	}
	if e.entries[key] != en {
		return nil
	}
	return e.runSave(ctx, key, en, true)
}

// SaveAll flushes every dirty key concurrently and reports failure if any save failed
func (e *Editor[K, V]) SaveAll(ctx context.Context) error {
	e.mu.Lock()
	var keys []K
	for k, en := range e.entries {
		if en.version != en.saved || en.saving {
			keys = append(keys, k)
		}
	}
	e.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []error
	)
	for _, key := range keys {
		g.Go(func() error {
			if err := e.Flush(ctx, key); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Errorf("%v: %w", key, err))
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		e.logger.Warn("Save all incomplete",
			logger.Int("failed", len(failed)),
			logger.Int("total", len(keys)))
		return &SaveAllError{Failed: len(failed), Total: len(keys), Err: errors.Join(failed...)}
	}

	e.logger.Debug("Saved all drafts", logger.Int("count", len(keys)))
	return nil
}

// SaveAllError reports a partially failed SaveAll
type SaveAllError struct {
	Failed int
	Total  int
	Err    error
}

func (e *SaveAllError) Error() string {
	return fmt.Sprintf("failed to save %d of %d items: %v", e.Failed, e.Total, e.Err)
}

func (e *SaveAllError) Unwrap() error {
	return e.Err
}

// fire runs when the debounce timer of key elapses
func (e *Editor[K, V]) fire(key K, id uint64) {
	e.mu.Lock()
	en, ok := e.entries[key]
	if !ok || en.timerID != id {
		e.mu.Unlock()
		return
	}
	en.timer = nil
	en.timerID = 0

	if en.saving {
		en.pending = true
		e.mu.Unlock()
		return
	}

	err := e.runSave(context.Background(), key, en, false)
	e.mu.Unlock()

	if err != nil && e.onError != nil {
		e.onError(key, err)
	}
}

// runSave saves en until it is clean or, unless untilClean, until no follow-up
// is owed. Called and returns with e.mu held; the lock is released while saving.
func (e *Editor[K, V]) runSave(ctx context.Context, key K, en *entry[V], untilClean bool) error {
	for {
		if en.version == en.saved {
			en.state = StateClean
			return nil
		}

		en.saving = true
		en.state = StateSaving
		value, version := en.value, en.version

		e.mu.Unlock()
		err := e.save(ctx, key, value)
		e.mu.Lock()

		en.saving = false
		pending := en.pending
		en.pending = false
		e.cond.Broadcast()

		if err != nil {
			en.state = StateDirty
			en.lastErr = err
			e.logger.Warn("Save failed", logger.String("key", fmt.Sprint(key)), logger.Error(err))
			if pending && en.version != version {
				continue
			}
			return err
		}

		en.saved = version
		en.lastErr = nil
		if en.version == en.saved {
			en.state = StateClean
			return nil
		}

		en.state = StateDirty
		if !pending && !untilClean {
			// A newer edit's timer will save it
			return nil
		}
	}
}
