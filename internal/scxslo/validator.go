package scxslo

// Validate bound-checks a candidate SloCfg. It is pure, total, and has
// no side effects: given the same input it always returns the same
// result, and it never stores anything.
//
// Ported directly from the original's validate_slo_cfg: budget_ns must
// sit in [MinBudgetNS, MaxBudgetNS], importance in [MinImportance,
// MaxImportance], and flags must be zero.
func Validate(cfg SloCfg) ConfigError {
	if cfg.BudgetNS == 0 || cfg.BudgetNS < MinBudgetNS {
		return ErrZeroOrBelowMin
	}
	if cfg.BudgetNS > MaxBudgetNS {
		return ErrAboveMax
	}
	if cfg.Importance < MinImportance || cfg.Importance > MaxImportance {
		return ErrImportanceOutOfRange
	}
	if cfg.Flags != 0 {
		return ErrReservedFlags
	}
	return ErrNone
}

// clampImportance forces an importance value into [MinImportance,
// MaxImportance], matching simple_enqueue's defensive clamp of a value
// that has already passed through the Config Store once (and so should
// already be in range, but the hot path never trusts that).
func clampImportance(imp uint32) uint32 {
	if imp < MinImportance {
		return MinImportance
	}
	if imp > MaxImportance {
		return MaxImportance
	}
	return imp
}
