package scxslo

import "testing"

func TestEffectiveBudgetWeighting(t *testing.T) {
	cases := []struct {
		budget     uint64
		importance uint32
		want       uint64
	}{
		{100_000_000, 100, 1_000_000},  // highest importance: eff = budget/100
		{100_000_000, 1, 100_000_000},  // lowest importance: eff = budget
		{20_000_000, 50, 10_200_000},   // matches the scenario-2 worked example
	}
	for _, c := range cases {
		if got := effectiveBudget(c.budget, c.importance); got != c.want {
			t.Fatalf("effectiveBudget(%d, %d) = %d, want %d", c.budget, c.importance, got, c.want)
		}
	}
}

func TestSaturatingAddClampsAtMax(t *testing.T) {
	if got := saturatingAdd(u64Max-10, 20); got != u64Max {
		t.Fatalf("saturatingAdd() = %d, want u64Max", got)
	}
}

func TestSaturatingAddNormalCase(t *testing.T) {
	if got := saturatingAdd(1_000_000_000, 500); got != 1_000_000_500 {
		t.Fatalf("saturatingAdd() = %d, want 1_000_000_500", got)
	}
}
