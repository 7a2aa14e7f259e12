package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Store is the persistence behind both case editors
type Store interface {
	ChecklistStore
	DefectStore
}

// ErrorFunc receives failed debounced saves; key is the checklist id or defect number
type ErrorFunc func(caseID, key string, err error)

// Registry hands out one loaded checklist editor and one defect editor per case
type Registry struct {
	store    Store
	debounce time.Duration
	clock    Clock
	onError  ErrorFunc
	logger   *logger.Logger

	mu        sync.Mutex
	checklist map[string]*ChecklistEditor
	defects   map[string]*DefectEditor
}

// NewRegistry creates a registry. A nil clock uses real timers.
func NewRegistry(store Store, debounce time.Duration, clock Clock, onError ErrorFunc, log *logger.Logger) *Registry {
	return &Registry{
		store:     store,
		debounce:  debounce,
		clock:     clock,
		onError:   onError,
		logger:    log.Named("editors"),
		checklist: make(map[string]*ChecklistEditor),
		defects:   make(map[string]*DefectEditor),
	}
}

func (r *Registry) reportError(caseID, key string, err error) {
	r.logger.Error("Auto-save failed",
		logger.String("case_id", caseID),
		logger.String("key", key),
		logger.Error(err))
	if r.onError != nil {
		r.onError(caseID, key, err)
	}
}

// Checklist returns the checklist editor of caseID, loading it on first use
func (r *Registry) Checklist(ctx context.Context, caseID string) (*ChecklistEditor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ed, ok := r.checklist[caseID]; ok {
		return ed, nil
	}

	ed := NewChecklistEditor(caseID, r.store, Options[string]{
		Debounce: r.debounce,
		Clock:    r.clock,
		OnError:  func(itemID string, err error) { r.reportError(caseID, itemID, err) },
	}, r.logger)
	if err := ed.Load(ctx); err != nil {
		return nil, err
	}

	r.checklist[caseID] = ed
	return ed, nil
}

// Defects returns the defect editor of caseID, loading it on first use
func (r *Registry) Defects(ctx context.Context, caseID string) (*DefectEditor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ed, ok := r.defects[caseID]; ok {
		return ed, nil
	}

	ed := NewDefectEditor(caseID, r.store, Options[int]{
		Debounce: r.debounce,
		Clock:    r.clock,
		OnError:  func(number int, err error) { r.reportError(caseID, fmt.Sprint(number), err) },
	}, r.logger)
	if err := ed.Load(ctx); err != nil {
		return nil, err
	}

	r.defects[caseID] = ed
	return ed, nil
}

// SaveAll flushes every editor of every case
func (r *Registry) SaveAll(ctx context.Context) error {
	r.mu.Lock()
	var savers []func(context.Context) error
	for _, ed := range r.checklist {
		savers = append(savers, ed.SaveAll)
	}
	for _, ed := range r.defects {
		savers = append(savers, ed.SaveAll)
	}
	r.mu.Unlock()

	var errs []error
	for _, save := range savers {
		if err := save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
