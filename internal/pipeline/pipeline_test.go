package pipeline

import (
	"testing"
)

type person struct {
	Name string
	Age  int
}

func people() []person {
	return []person{
		{"carol", 35},
		{"alice", 30},
		{"dave", 25},
		{"bob", 30},
		{"erin", 40},
	}
}

// TestConditionalCombinators tests the condition gate on every combinator
func TestConditionalCombinators(t *testing.T) {
	t.Run("FalseConditionIsIdentity", func(t *testing.T) {
		p := From(people())
		q := p.
			WhereIf(false, func(person) bool { return false }).
			OrderByIf(false, By(func(x person) int { return x.Age }), false).
			ThenByIf(false, By(func(x person) string { return x.Name }), false).
			SkipIf(false, 2).
			TakeIf(false, 1)

		if q != p {
			t.Error("false conditions did not return the receiver")
		}
		got := q.Items()
		want := people()
		if len(got) != len(want) {
			t.Fatalf("Items count = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Items[%d] = %+v, want %+v", i, got[i], want[i])
			}
		}
	})

	t.Run("FalseConditionNeverInvokesPredicate", func(t *testing.T) {
		called := false
		From(people()).
			WhereIf(false, func(person) bool {
				called = true
				return true
			}).
			Items()
		if called {
			t.Error("predicate ran despite a false condition")
		}
	})

	t.Run("WhereIfFilters", func(t *testing.T) {
		got := From(people()).
			WhereIf(true, func(x person) bool { return x.Age >= 30 }).
			Items()
		if len(got) != 4 {
			t.Fatalf("Items count = %d, want 4", len(got))
		}
		for _, x := range got {
			if x.Age < 30 {
				t.Errorf("filter kept %+v", x)
			}
		}
	})

	t.Run("OrderByIfAscending", func(t *testing.T) {
		got := From(people()).
			OrderByIf(true, By(func(x person) int { return x.Age }), false).
			Items()
		wantAges := []int{25, 30, 30, 35, 40}
		for i, x := range got {
			if x.Age != wantAges[i] {
				t.Errorf("ages = %v, want %v", ages(got), wantAges)
				break
			}
		}
	})

	t.Run("OrderByIfDescending", func(t *testing.T) {
		got := From(people()).
			OrderByIf(true, By(func(x person) int { return x.Age }), true).
			Items()
		wantAges := []int{40, 35, 30, 30, 25}
		for i, x := range got {
			if x.Age != wantAges[i] {
				t.Errorf("ages = %v, want %v", ages(got), wantAges)
				break
			}
		}
	})

	t.Run("ThenByIfBreaksTiesOnly", func(t *testing.T) {
		got := From(people()).
			OrderByIf(true, By(func(x person) int { return x.Age }), false).
			ThenByIf(true, By(func(x person) string { return x.Name }), true).
			Items()

		// alice and bob tie on age 30; the descending name key puts bob
		// first without disturbing the age order
		wantNames := []string{"dave", "bob", "alice", "carol", "erin"}
		for i, x := range got {
			if x.Name != wantNames[i] {
				t.Errorf("names = %v, want %v", names(got), wantNames)
				break
			}
		}
	})

	t.Run("ThenByIfWithoutSortSortsAlone", func(t *testing.T) {
		got := From(people()).
			ThenByIf(true, By(func(x person) string { return x.Name }), false).
			Items()
		wantNames := []string{"alice", "bob", "carol", "dave", "erin"}
		for i, x := range got {
			if x.Name != wantNames[i] {
				t.Errorf("names = %v, want %v", names(got), wantNames)
				break
			}
		}
	})

	t.Run("SkipIfAndTakeIf", func(t *testing.T) {
		got := From(people()).
			OrderByIf(true, By(func(x person) int { return x.Age }), false).
			SkipIf(true, 1).
			TakeIf(true, 2).
			Items()
		wantNames := []string{"alice", "bob"}
		if len(got) != 2 || got[0].Name != wantNames[0] || got[1].Name != wantNames[1] {
			t.Errorf("names = %v, want %v", names(got), wantNames)
		}
	})

	t.Run("SkipAndTakeClamp", func(t *testing.T) {
		if n := From(people()).SkipIf(true, 100).Count(); n != 0 {
			t.Errorf("skip past end left %d items", n)
		}
		if n := From(people()).SkipIf(true, -3).Count(); n != 5 {
			t.Errorf("negative skip left %d items, want 5", n)
		}
		if n := From(people()).TakeIf(true, 100).Count(); n != 5 {
			t.Errorf("take past end left %d items, want 5", n)
		}
		if n := From(people()).TakeIf(true, -1).Count(); n != 0 {
			t.Errorf("negative take left %d items, want 0", n)
		}
	})
}

// TestMapIf tests the two-branch projection
func TestMapIf(t *testing.T) {
	t.Run("TrueRunsMain", func(t *testing.T) {
		got := MapIf(From(people()), true,
			func(x person) string { return x.Name },
			func(x person) string { return "alt" },
		).Items()
		if got[0] != "carol" {
			t.Errorf("Items[0] = %q, want carol", got[0])
		}
	})

	t.Run("FalseRunsAlt", func(t *testing.T) {
		mainCalled := false
		got := MapIf(From(people()), false,
			func(x person) string {
				mainCalled = true
				return "main"
			},
			func(x person) string { return x.Name },
		).Items()
		if mainCalled {
			t.Error("main selector ran despite a false condition")
		}
		if got[0] != "carol" {
			t.Errorf("Items[0] = %q, want carol", got[0])
		}
	})

	t.Run("TypeChangingProjection", func(t *testing.T) {
		total := 0
		for _, age := range MapIf(From(people()), true,
			func(x person) int { return x.Age },
			func(x person) int { return 0 },
		).Items() {
			total += age
		}
		if total != 160 {
			t.Errorf("sum of ages = %d, want 160", total)
		}
	})
}

// TestLaziness tests deferred and repeated evaluation
func TestLaziness(t *testing.T) {
	t.Run("SourceRunsOnlyOnItems", func(t *testing.T) {
		calls := 0
		p := FromFunc(func() []person {
			calls++
			return people()
		}).WhereIf(true, func(x person) bool { return x.Age > 0 })

		if calls != 0 {
			t.Fatalf("source ran %d times before Items", calls)
		}
		p.Items()
		p.Items()
		if calls != 2 {
			t.Errorf("source ran %d times, want 2", calls)
		}
	})

	t.Run("ExtendingDoesNotAffectReceiver", func(t *testing.T) {
		base := From(people()).WhereIf(true, func(x person) bool { return x.Age >= 30 })
		extended := base.TakeIf(true, 1)

		if base.Count() != 4 {
			t.Errorf("base count = %d after extension, want 4", base.Count())
		}
		if extended.Count() != 1 {
			t.Errorf("extended count = %d, want 1", extended.Count())
		}
	})

	t.Run("ItemsReturnsFreshSlice", func(t *testing.T) {
		p := From(people())
		a := p.Items()
		a[0] = person{"mutated", 0}
		b := p.Items()
		if b[0].Name == "mutated" {
			t.Error("Items returned a shared slice")
		}
	})

	t.Run("SortDoesNotMutateSource", func(t *testing.T) {
		src := people()
		From(src).OrderByIf(true, By(func(x person) int { return x.Age }), false).Items()
		if src[0].Name != "carol" {
			t.Errorf("source was reordered: %v", names(src))
		}
	})
}

func ages(xs []person) []int {
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = x.Age
	}
	return out
}

func names(xs []person) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = x.Name
	}
	return out
}
