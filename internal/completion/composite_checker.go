package completion

import (
	"fmt"

	"tsgraph/internal/timeutil"
)

// Strategy selects how a CompositeChecker combines its children.
type Strategy int

const (
	// Strictest: complete iff every child is complete; ExpectedLast is the
	// minimum of the children's.
	Strictest Strategy = iota
	// Laxest: complete iff any child is complete; ExpectedLast is the
	// maximum of the children's.
	Laxest
)

// CompositeChecker combines child checkers under Strictest or Laxest. Used by
// Task's default-checker derivation when more than one dependency inherits
// frequency.
type CompositeChecker struct {
	Strategy Strategy
	Children []Checker
}

// NewComposite builds a CompositeChecker. Passing zero children is allowed
// and behaves like IrregularChecker (trivially complete on any non-empty
// target is never claimed; ExpectedLast reports no expectation).
func NewComposite(strategy Strategy, children ...Checker) *CompositeChecker {
	return &CompositeChecker{Strategy: strategy, Children: children}
}

// ExpectedLast implements Checker.
func (c *CompositeChecker) ExpectedLast(target timeutil.TimeRange) (timeutil.Timestamp, bool) {
	var best timeutil.Timestamp
	found := false
	for _, child := range c.Children {
		ts, ok := child.ExpectedLast(target)
		if !ok {
			continue
		}
		if !found {
			best = ts
			found = true
			continue
		}
		switch c.Strategy {
		case Strictest:
			if ts.Before(best) {
				best = ts
			}
		case Laxest:
			if ts.After(best) {
				best = ts
			}
		}
	}
	return best, found
}

// IsComplete implements Checker.
func (c *CompositeChecker) IsComplete(target timeutil.TimeRange, existing *timeutil.Extent) (bool, error) {
	if len(c.Children) == 0 {
		return IrregularChecker{}.IsComplete(target, existing)
	}
	switch c.Strategy {
	case Strictest:
		for _, child := range c.Children {
			ok, err := child.IsComplete(target, existing)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Laxest:
		var lastErr error
		for _, child := range c.Children {
			ok, err := child.IsComplete(target, existing)
			if err != nil {
				lastErr = err
				continue
			}
			if ok {
				return true, nil
			}
		}
		if lastErr != nil {
			return false, lastErr
		}
		return false, nil
	default:
		return false, fmt.Errorf("completion: unknown strategy %d", c.Strategy)
	}
}
