package calibration

import (
	"fmt"

	"bayescal/domain/core"
)

// Budget counts simulator attempts. Every attempt costs one unit,
// failed or not.
type Budget struct {
	Max  int `json:"max"`
	Used int `json:"used"`
}

// NewBudget returns a budget of max evaluations.
func NewBudget(max int) (*Budget, error) {
	if max < 1 {
		return nil, core.NewConfigError("budget", fmt.Sprintf("must be at least 1, got %d", max))
	}
	return &Budget{Max: max}, nil
}

// Consume takes one unit or fails with ErrBudgetExhausted.
func (b *Budget) Consume() error {
	if b.Used >= b.Max {
		return core.ErrBudgetExhausted
	}
	b.Used++
	return nil
}

// Remaining returns the number of attempts left.
func (b *Budget) Remaining() int {
	return b.Max - b.Used
}

// Exhausted reports whether no attempts are left.
func (b *Budget) Exhausted() bool {
	return b.Used >= b.Max
}
