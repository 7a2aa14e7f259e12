// Package cases holds the inspected-site entity and the active-case selection
// shared by the pipeline, editors and HTTP handlers.
package cases

import (
	"errors"
	"sync"
)

// ErrNoCaseSelected is returned by readers that require an active case
var ErrNoCaseSelected = errors.New("no case selected")

// Case is one inspected site under review. Read-only reference data.
type Case struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	CaseNumber string `json:"case_number"`
}

// Reference are the cases seeded into an empty store
var Reference = []Case{
	{ID: "1", Name: "Masthuggets Vårdcentral", Address: "Fjärde Långgatan 48", CaseNumber: "14K1-017313"},
	{ID: "2", Name: "GTG – Tekniska Gymnasiet", Address: "Diagonalen 6", CaseNumber: "14K1-017317"},
	{ID: "3", Name: "Högsbotorps Vård- och omsorgsboende", Address: "Markmyntsgatan 14", CaseNumber: "14K1-017320"},
	{ID: "4", Name: "Havskrogen Storkök & Catering", Address: "Södra Hamngatan 88, 411 05 Göteborg", CaseNumber: "14K1-022102"},
	{ID: "5", Name: "Kulturhuset Skeppet", Address: "Skeppsbron 31, 414 59 Göteborg", CaseNumber: "14K1-022104"},
	{ID: "6", Name: "Teknikhuset Innovate", Address: "Teknikgatan 5, 412 55 Göteborg", CaseNumber: "14K1-022105"},
}

// Selection is the explicit active-case context. Select is the single writer;
// everything else reads through Current or Require.
type Selection struct {
	mu       sync.RWMutex
	selected *Case
}

// NewSelection creates an empty selection
func NewSelection() *Selection {
	return &Selection{}
}

// Select makes c the active case
func (s *Selection) Select(c Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	selected := c
	s.selected = &selected
}

// Clear removes the active case
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Current returns the active case, if any
func (s *Selection) Current() (Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return Case{}, false
	}
	return *s.selected, true
}

// Require returns the active case or ErrNoCaseSelected
func (s *Selection) Require() (Case, error) {
	c, ok := s.Current()
	if !ok {
		return Case{}, ErrNoCaseSelected
	}
	return c, nil
}
