package editor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// ErrUnknownDefect is returned when editing a defect number the case does not have
var ErrUnknownDefect = errors.New("unknown defect")

// DefectStore is the persistence the defect editor writes through
type DefectStore interface {
	UpsertDefect(ctx context.Context, d sqlite.Defect) (sqlite.Defect, error)
	DeleteDefect(ctx context.Context, caseID string, number int) error
	ListDefects(ctx context.Context, caseID string) ([]sqlite.Defect, error)
}

// DefectEditor edits the numbered defect list of one case
type DefectEditor struct {
	caseID string
	store  DefectStore
	editor *Editor[int, string]
	logger *logger.Logger

	mu      sync.Mutex
	numbers map[int]struct{}
}

// NewDefectEditor creates an editor for caseID
func NewDefectEditor(caseID string, store DefectStore, opts Options[int], log *logger.Logger) *DefectEditor {
	d := &DefectEditor{
		caseID:  caseID,
		store:   store,
		logger:  log.WithCase(caseID).Named("defects"),
		numbers: make(map[int]struct{}),
	}
	d.editor = New(d.save, opts, d.logger)
	return d
}

func (d *DefectEditor) save(ctx context.Context, number int, description string) error {
	_, err := d.store.UpsertDefect(ctx, sqlite.Defect{
		CaseID:       d.caseID,
		DefectNumber: number,
		Description:  description,
	})
	return err
}

// CaseID returns the case being edited
func (d *DefectEditor) CaseID() string {
	return d.caseID
}

// Load mirrors the stored defects into the editor
func (d *DefectEditor) Load(ctx context.Context) error {
	rows, err := d.store.ListDefects(ctx, d.caseID)
	if err != nil {
		return fmt.Errorf("failed to load defects: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, row := range rows {
		d.numbers[row.DefectNumber] = struct{}{}
		d.editor.Load(row.DefectNumber, row.Description)
	}
	return nil
}

// Add creates the next defect, numbered one above the current maximum.
// A case holding MaxDefectsPerCase defects gets nothing and added=false.
func (d *DefectEditor) Add(ctx context.Context) (number int, added bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.numbers) >= sqlite.MaxDefectsPerCase {
		d.logger.Debug("Defect limit reached", logger.Int("limit", sqlite.MaxDefectsPerCase))
		return 0, false, nil
	}

	next := 1
	for n := range d.numbers {
		if n >= next {
			next = n + 1
		}
	}

	if _, err := d.store.UpsertDefect(ctx, sqlite.Defect{CaseID: d.caseID, DefectNumber: next}); err != nil {
		return 0, false, fmt.Errorf("failed to add defect: %w", err)
	}

	d.numbers[next] = struct{}{}
	d.editor.Load(next, "")
	return next, true, nil
}

// Delete removes a defect. Remaining defects keep their numbers.
func (d *DefectEditor) Delete(ctx context.Context, number int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.numbers[number]; !ok {
		return fmt.Errorf("defect %d: %w", number, ErrUnknownDefect)
	}

	d.editor.Discard(number)
	if err := d.store.DeleteDefect(ctx, d.caseID, number); err != nil && !errors.Is(err, sqlite.ErrNotFound) {
		return fmt.Errorf("failed to delete defect: %w", err)
	}
	delete(d.numbers, number)
	return nil
}

// EditDescription changes the description draft of a defect
func (d *DefectEditor) EditDescription(number int, description string) error {
	d.mu.Lock()
	_, ok := d.numbers[number]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("defect %d: %w", number, ErrUnknownDefect)
	}

	d.editor.Set(number, description)
	return nil
}

// Numbers returns the defect numbers in ascending order
func (d *DefectEditor) Numbers() []int {
	d.mu.Lock()
	defer d.mu.Unlock()

	numbers := make([]int, 0, len(d.numbers))
	for n := range d.numbers {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// Description returns the draft description of a defect
func (d *DefectEditor) Description(number int) (string, State, bool) {
	return d.editor.Get(number)
}

// States returns the save state of every defect
func (d *DefectEditor) States() map[int]State {
	return d.editor.States()
}

// SaveAll flushes all pending description edits
func (d *DefectEditor) SaveAll(ctx context.Context) error {
	return d.editor.SaveAll(ctx)
}
