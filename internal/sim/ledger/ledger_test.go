package ledger

import "testing"

func TestAvailable_SumsAcrossSources(t *testing.T) {
	inv := NewMapSource("inventory", map[string]int{"PLANK": 3, "NAILS": 10})
	storage := NewMapSource("relic", map[string]int{"PLANK": 5})
	l := New(FuncResolver(func(string) []ItemSource {
		return []ItemSource{inv, storage}
	}))

	if got := l.Available("o1", "PLANK"); got != 8 {
		t.Fatalf("PLANK=%d want 8", got)
	}
	if got := l.Available("o1", "NAILS"); got != 10 {
		t.Fatalf("NAILS=%d want 10", got)
	}
	if got := l.Available("o1", "BUCKET"); got != 0 {
		t.Fatalf("BUCKET=%d want 0", got)
	}
}

func TestSubstitutionCount_IncludesZeroEntries(t *testing.T) {
	inv := NewMapSource("inventory", map[string]int{"PLANK": 3, "LOG": 2})
	l := New(FuncResolver(func(string) []ItemSource {
		return []ItemSource{inv}
	}))

	total, perType := l.SubstitutionCount("o1", Requirement{
		Item:        "PLANK",
		Substitutes: []string{"SCRAP_WOOD", "LOG"},
		Count:       10,
	})
	if total != 5 {
		t.Fatalf("total=%d want 5", total)
	}
	want := map[string]int{"PLANK": 3, "SCRAP_WOOD": 0, "LOG": 2}
	for k, v := range want {
		got, ok := perType[k]
		if !ok || got != v {
			t.Fatalf("perType=%#v want %#v", perType, want)
		}
	}
}

func TestSubstitutionCount_DedupesRepeatedTypes(t *testing.T) {
	inv := NewMapSource("inventory", map[string]int{"PLANK": 3})
	l := New(FuncResolver(func(string) []ItemSource {
		return []ItemSource{inv}
	}))

	total, _ := l.SubstitutionCount("o1", Requirement{
		Item:        "PLANK",
		Substitutes: []string{"PLANK", "PLANK"},
		Count:       1,
	})
	if total != 3 {
		t.Fatalf("total=%d want 3 (no double count)", total)
	}
}

func TestMapSource_RemoveClampsAndDeletes(t *testing.T) {
	src := NewMapSource("inventory", map[string]int{"PLANK": 3})

	if got := src.Remove("PLANK", 2); got != 2 {
		t.Fatalf("removed=%d want 2", got)
	}
	if got := src.Remove("PLANK", 5); got != 1 {
		t.Fatalf("removed=%d want 1", got)
	}
	if _, ok := src.Items["PLANK"]; ok {
		t.Fatalf("empty stack not deleted: %#v", src.Items)
	}
	if got := src.Remove("PLANK", 1); got != 0 {
		t.Fatalf("removed=%d want 0", got)
	}
}
