package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/cases"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := Open(":memory:", logger.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func str(s string) *string { return &s }

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tillsyn.db")
	g, err := Open(path, logger.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer g.Close()

	if err := g.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestCases(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	added, err := g.SeedCases(ctx, cases.Reference)
	if err != nil || added != len(cases.Reference) {
		t.Fatalf("SeedCases() = %d, %v", added, err)
	}
	again, err := g.SeedCases(ctx, cases.Reference)
	if err != nil || again != 0 {
		t.Fatalf("second SeedCases() = %d, %v, want 0", again, err)
	}

	all, err := g.ListCases(ctx)
	if err != nil || len(all) != len(cases.Reference) {
		t.Fatalf("ListCases() = %d, %v", len(all), err)
	}

	c, err := g.GetCase(ctx, "5")
	if err != nil || c.Name != "Kulturhuset Skeppet" {
		t.Errorf("GetCase(5) = %+v, %v", c, err)
	}
	if _, err := g.GetCase(ctx, "404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCase(404) error = %v, want ErrNotFound", err)
	}
}

func TestChecklistUpsertKeepsOneRowPerItem(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	first, err := g.UpsertChecklistResponse(ctx, ChecklistResponse{CaseID: "1", ChecklistID: "doc_1", Answer: str("Ja")})
	if err != nil {
		t.Fatalf("UpsertChecklistResponse() error = %v", err)
	}
	second, err := g.UpsertChecklistResponse(ctx, ChecklistResponse{CaseID: "1", ChecklistID: "doc_1", Answer: str("Nej"), Comment: "saknas"})
	if err != nil {
		t.Fatalf("UpsertChecklistResponse() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("row id changed on update: %s -> %s", first.ID, second.ID)
	}
	if *second.Answer != "Nej" || second.Comment != "saknas" {
		t.Errorf("stored = %+v", second)
	}

	if _, err := g.UpsertChecklistResponse(ctx, ChecklistResponse{CaseID: "1", ChecklistID: "doc_2"}); err != nil {
		t.Fatal(err)
	}
	list, err := g.ListChecklistResponses(ctx, "1")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListChecklistResponses() = %d, %v", len(list), err)
	}
	if list[1].Answer != nil {
		t.Errorf("unanswered item = %v, want nil", *list[1].Answer)
	}

	other, _ := g.ListChecklistResponses(ctx, "2")
	if len(other) != 0 {
		t.Errorf("case 2 responses = %d, want 0", len(other))
	}
}

func TestDefects(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	for _, n := range []int{3, 1, 2} {
		if _, err := g.UpsertDefect(ctx, Defect{CaseID: "1", DefectNumber: n, Description: "brist"}); err != nil {
			t.Fatalf("UpsertDefect(%d) error = %v", n, err)
		}
	}

	if _, err := g.UpsertDefect(ctx, Defect{CaseID: "1", DefectNumber: 0}); err == nil {
		t.Error("expected error for defect number 0")
	}
	if _, err := g.UpsertDefect(ctx, Defect{CaseID: "9", DefectNumber: 25}); err != nil {
		t.Errorf("UpsertDefect(25) error = %v, numbers above the case limit are valid after deletes", err)
	}

	if err := g.UpdateDefectAnalysis(ctx, "1", 2, str("Dörrparti"), nil, str("Underhåll")); err != nil {
		t.Fatalf("UpdateDefectAnalysis() error = %v", err)
	}
	if err := g.UpdateDefectAnalysis(ctx, "1", 2, nil, str("Åtgärda"), nil); err != nil {
		t.Fatalf("UpdateDefectAnalysis() error = %v", err)
	}
	if err := g.UpdateDefectAnalysis(ctx, "1", 9, str("x"), nil, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDefectAnalysis(9) error = %v, want ErrNotFound", err)
	}

	// Editing the description keeps the analysis
	updated, err := g.UpsertDefect(ctx, Defect{CaseID: "1", DefectNumber: 2, Description: "Dörr glipar"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != "Dörr glipar" || *updated.Brist != "Dörrparti" || *updated.Atgard != "Åtgärda" || *updated.Motivering != "Underhåll" {
		t.Errorf("updated = %+v", updated)
	}

	if err := g.DeleteDefect(ctx, "1", 1); err != nil {
		t.Fatalf("DeleteDefect() error = %v", err)
	}
	if err := g.DeleteDefect(ctx, "1", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteDefect() error = %v, want ErrNotFound", err)
	}

	list, err := g.ListDefects(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].DefectNumber != 2 || list[1].DefectNumber != 3 {
		t.Errorf("ListDefects() = %+v, want numbers 2 and 3", list)
	}
}

func TestListAllDefects(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	if _, err := g.SeedCases(ctx, cases.Reference); err != nil {
		t.Fatal(err)
	}

	first, err := g.UpsertDefect(ctx, Defect{CaseID: "2", DefectNumber: 1, Description: "Skylt saknas"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.UpsertDefect(ctx, Defect{CaseID: "5", DefectNumber: 1, Description: "Dörr uppställd"}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.UpsertDefect(ctx, Defect{CaseID: "orphan", DefectNumber: 3}); err != nil {
		t.Fatal(err)
	}

	all, err := g.ListAllDefects(ctx)
	if err != nil {
		t.Fatalf("ListAllDefects() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAllDefects() = %d rows, want 3", len(all))
	}
	if all[0].CaseID != "orphan" || all[0].CaseName != "" {
		t.Errorf("newest = %+v, want the orphan defect with no case details", all[0])
	}
	if all[1].CaseName != "Kulturhuset Skeppet" || all[1].CaseNumber != "14K1-022104" || all[1].CaseAddress == "" {
		t.Errorf("second = %+v, want case 5 details", all[1])
	}
	if all[2].ID != first.ID || all[2].Description != "Skylt saknas" {
		t.Errorf("oldest = %+v, want %s", all[2], first.ID)
	}

	got, err := g.GetDefectByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetDefectByID() error = %v", err)
	}
	if got.CaseID != "2" || got.DefectNumber != 1 {
		t.Errorf("GetDefectByID() = %+v", got)
	}
	if _, err := g.GetDefectByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDefectByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTimestampsSortAsText(t *testing.T) {
	a := formatTime(time.Date(2025, 9, 4, 9, 0, 5, 0, time.UTC))
	b := formatTime(time.Date(2025, 9, 4, 9, 0, 5, 100, time.UTC))
	if !(a < b) {
		t.Errorf("%q should sort before %q", a, b)
	}
	parsed, err := parseTime(b)
	if err != nil || parsed.Nanosecond() != 100 {
		t.Errorf("parseTime(%q) = %v, %v", b, parsed, err)
	}
}

func TestConversationData(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	if _, err := g.GetConversationData(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetConversationData() error = %v, want ErrNotFound", err)
	}

	err := g.UpsertConversationData(ctx, ConversationData{ConversationID: "conv-1", Project: str("12345"), Hours: str("3"), Source: "llm"})
	if err != nil {
		t.Fatalf("UpsertConversationData() error = %v", err)
	}
	err = g.UpsertConversationData(ctx, ConversationData{ConversationID: "conv-1", Project: str("99887"), Closed: str("yes"), Source: "structured"})
	if err != nil {
		t.Fatalf("UpsertConversationData() error = %v", err)
	}

	d, err := g.GetConversationData(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if *d.Project != "99887" || d.Hours != nil || *d.Closed != "yes" || d.Source != "structured" {
		t.Errorf("stored = %+v", d)
	}
}

func TestInsertTranscriptOnce(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.InsertTranscript(ctx, "conv-1", "A: Hej\n\nYou: Projekt 1")
			if err != nil {
				t.Errorf("InsertTranscript() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Errorf("inserted = %d, want exactly 1", inserted)
	}

	got, err := g.GetTranscript(ctx, "conv-1")
	if err != nil || got.Transcript != "A: Hej\n\nYou: Projekt 1" {
		t.Errorf("GetTranscript() = %+v, %v", got, err)
	}

	// A second gateway over the same database still refuses a duplicate
	other, err := New(g.db, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ok, err := other.InsertTranscript(ctx, "conv-1", "different")
	if err != nil || ok {
		t.Errorf("InsertTranscript() from fresh gateway = %v, %v, want no insert", ok, err)
	}
}

func TestProjects(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	for _, p := range []Project{{"99887", "Skeppet AB"}, {"12345", "Göteborgs Stad"}, {"12345", "Göteborgs Stad Fastighet"}} {
		if err := g.UpsertProject(ctx, p); err != nil {
			t.Fatalf("UpsertProject() error = %v", err)
		}
	}
	if err := g.UpsertProject(ctx, Project{Uppdragsnr: " "}); err == nil {
		t.Error("expected error for blank project number")
	}

	list, err := g.ListProjects(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListProjects() = %v, %v", list, err)
	}
	if list[0].Uppdragsnr != "12345" || list[0].Kund != "Göteborgs Stad Fastighet" {
		t.Errorf("list[0] = %+v", list[0])
	}
}
