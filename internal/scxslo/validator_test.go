package scxslo

import "testing"

func TestValidateAcceptsInRangeConfig(t *testing.T) {
	cfg := SloCfg{BudgetNS: 50_000_000, Importance: 75, Flags: 0}
	if reason := Validate(cfg); reason != ErrNone {
		t.Fatalf("expected acceptance, got %v", reason)
	}
}

func TestValidateRejectsZeroBudget(t *testing.T) {
	cfg := SloCfg{BudgetNS: 0, Importance: 50}
	if reason := Validate(cfg); reason != ErrZeroOrBelowMin {
		t.Fatalf("expected ErrZeroOrBelowMin, got %v", reason)
	}
}

func TestValidateRejectsBelowMinBudget(t *testing.T) {
	cfg := SloCfg{BudgetNS: MinBudgetNS - 1, Importance: 50}
	if reason := Validate(cfg); reason != ErrZeroOrBelowMin {
		t.Fatalf("expected ErrZeroOrBelowMin, got %v", reason)
	}
}

func TestValidateRejectsAboveMaxBudget(t *testing.T) {
	cfg := SloCfg{BudgetNS: MaxBudgetNS + 1, Importance: 50}
	if reason := Validate(cfg); reason != ErrAboveMax {
		t.Fatalf("expected ErrAboveMax, got %v", reason)
	}
}

func TestValidateRejectsImportanceOutOfRange(t *testing.T) {
	for _, imp := range []uint32{0, 101, 1000} {
		cfg := SloCfg{BudgetNS: MinBudgetNS, Importance: imp}
		if reason := Validate(cfg); reason != ErrImportanceOutOfRange {
			t.Fatalf("importance=%d: expected ErrImportanceOutOfRange, got %v", imp, reason)
		}
	}
}

func TestValidateRejectsReservedFlags(t *testing.T) {
	cfg := SloCfg{BudgetNS: MinBudgetNS, Importance: 50, Flags: 1}
	if reason := Validate(cfg); reason != ErrReservedFlags {
		t.Fatalf("expected ErrReservedFlags, got %v", reason)
	}
}

func TestValidateBoundaryValues(t *testing.T) {
	if reason := Validate(SloCfg{BudgetNS: MinBudgetNS, Importance: MinImportance}); reason != ErrNone {
		t.Fatalf("min boundary: expected acceptance, got %v", reason)
	}
	if reason := Validate(SloCfg{BudgetNS: MaxBudgetNS, Importance: MaxImportance}); reason != ErrNone {
		t.Fatalf("max boundary: expected acceptance, got %v", reason)
	}
}

func TestClampImportance(t *testing.T) {
	cases := map[uint32]uint32{
		0:   MinImportance,
		1:   1,
		50:  50,
		100: 100,
		200: MaxImportance,
	}
	for in, want := range cases {
		if got := clampImportance(in); got != want {
			t.Fatalf("clampImportance(%d) = %d, want %d", in, got, want)
		}
	}
}
