package editor

import (
	"context"
	"fmt"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/checklist"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/storage/sqlite"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// ChecklistStore is the persistence the checklist editor writes through
type ChecklistStore interface {
	UpsertChecklistResponse(ctx context.Context, r sqlite.ChecklistResponse) (sqlite.ChecklistResponse, error)
	ListChecklistResponses(ctx context.Context, caseID string) ([]sqlite.ChecklistResponse, error)
}

// ChecklistAnswer is the draft for one checklist item
type ChecklistAnswer struct {
	Answer  *string `json:"answer"`
	Comment string  `json:"comment"`
}

// ChecklistEditor edits the checklist answers of one case
type ChecklistEditor struct {
	caseID string
	store  ChecklistStore
	editor *Editor[string, ChecklistAnswer]
}

// NewChecklistEditor creates an editor for caseID
func NewChecklistEditor(caseID string, store ChecklistStore, opts Options[string], log *logger.Logger) *ChecklistEditor {
	c := &ChecklistEditor{caseID: caseID, store: store}
	c.editor = New(c.save, opts, log.WithCase(caseID).Named("checklist"))
	return c
}

func (c *ChecklistEditor) save(ctx context.Context, itemID string, a ChecklistAnswer) error {
	_, err := c.store.UpsertChecklistResponse(ctx, sqlite.ChecklistResponse{
		CaseID:      c.caseID,
		ChecklistID: itemID,
		Answer:      a.Answer,
		Comment:     a.Comment,
	})
	return err
}

// CaseID returns the case being edited
func (c *ChecklistEditor) CaseID() string {
	return c.caseID
}

// Load mirrors the stored answers into the editor
func (c *ChecklistEditor) Load(ctx context.Context) error {
	rows, err := c.store.ListChecklistResponses(ctx, c.caseID)
	if err != nil {
		return fmt.Errorf("failed to load checklist: %w", err)
	}
	for _, r := range rows {
		c.editor.Load(r.ChecklistID, ChecklistAnswer{Answer: r.Answer, Comment: r.Comment})
	}
	return nil
}

// SetAnswer records an answer; an empty answer clears it
func (c *ChecklistEditor) SetAnswer(itemID, answer string) error {
	item, ok := checklist.Lookup(itemID)
	if !ok {
		return fmt.Errorf("unknown checklist item %q", itemID)
	}
	if answer != "" && !item.ValidAnswer(answer) {
		return fmt.Errorf("invalid answer %q for %s", answer, itemID)
	}

	var value *string
	if answer != "" {
		value = &answer
	}
	c.editor.Update(itemID, func(a ChecklistAnswer) ChecklistAnswer {
		a.Answer = value
		return a
	})
	return nil
}

// SetComment records the free-text comment of an item
func (c *ChecklistEditor) SetComment(itemID, comment string) error {
	if _, ok := checklist.Lookup(itemID); !ok {
		return fmt.Errorf("unknown checklist item %q", itemID)
	}
	c.editor.Update(itemID, func(a ChecklistAnswer) ChecklistAnswer {
		a.Comment = comment
		return a
	})
	return nil
}

// Get returns the draft of an item
func (c *ChecklistEditor) Get(itemID string) (ChecklistAnswer, State, bool) {
	return c.editor.Get(itemID)
}

// States returns the save state of every touched item
func (c *ChecklistEditor) States() map[string]State {
	return c.editor.States()
}

// SaveAll flushes all pending edits
func (c *ChecklistEditor) SaveAll(ctx context.Context) error {
	return c.editor.SaveAll(ctx)
}
