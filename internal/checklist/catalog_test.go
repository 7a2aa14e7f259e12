package checklist

import "testing"

func TestCatalogShape(t *testing.T) {
	all := Items()
	if len(all) != 35 {
		t.Fatalf("len(Items()) = %d, want 35", len(all))
	}

	seen := make(map[string]bool)
	for _, item := range all {
		if seen[item.ID] {
			t.Errorf("duplicate checklist id %q", item.ID)
		}
		seen[item.ID] = true
	}

	sections := Sections()
	if len(sections) != 10 {
		t.Fatalf("len(Sections()) = %d, want 10", len(sections))
	}
	if sections[0].Name != SectionDocumentation || len(sections[0].Items) != 4 {
		t.Errorf("first section = %q with %d items, want %q with 4", sections[0].Name, len(sections[0].Items), SectionDocumentation)
	}
	if last := sections[len(sections)-1]; last.Name != SectionRescueService {
		t.Errorf("last section = %q, want %q", last.Name, SectionRescueService)
	}
}

func TestValidAnswer(t *testing.T) {
	item, ok := Lookup("3.3.3")
	if !ok {
		t.Fatal("Lookup(3.3.3) not found")
	}
	if !item.ValidAnswer("Utrymningslarm finns ej") {
		t.Error("expected item-specific option to be valid")
	}
	if item.ValidAnswer("Kanske") {
		t.Error("expected unknown option to be rejected")
	}

	free, _ := Lookup("5.6")
	if !free.ValidAnswer("vad som helst") {
		t.Error("free-text item should accept any answer")
	}
}
