package models

import (
	"fmt"
	"math"
	"time"
)

// ConditionClause joins the rules of a composite condition.
type ConditionClause string

const (
	ClauseAnd ConditionClause = "and"
	ClauseOr  ConditionClause = "or"
)

func (c ConditionClause) Valid() bool {
	return c == ClauseAnd || c == ClauseOr
}

// ConditionMeasure is the cart figure a leaf rule bounds.
type ConditionMeasure string

const (
	MeasureQuantity ConditionMeasure = "quantity"
	MeasureAmount   ConditionMeasure = "amount"
)

func (m ConditionMeasure) Valid() bool {
	return m == MeasureQuantity || m == MeasureAmount
}

// Condition is a purchase rule a cart must satisfy before the discount
// carrying it applies. A composite condition (Clause set) joins its Rules;
// a leaf bounds the quantity or amount of the cart lines its Context
// matches by Min and/or Max, both inclusive.
type Condition struct {
	ID      string           `json:"id"`
	Clause  ConditionClause  `json:"clause,omitempty"`
	Rules   []*Condition     `json:"rules,omitempty"`
	Measure ConditionMeasure `json:"measure,omitempty"`
	Context *DiscountContext `json:"context,omitempty"`
	Min     *float64         `json:"min,omitempty"`
	Max     *float64         `json:"max,omitempty"`
}

func (c *Condition) IsComposite() bool { return c.Clause != "" }

// Holds evaluates the condition against a cart. A nil condition and a
// composite without rules hold for every cart.
func (c *Condition) Holds(items []CartItem) bool {
	if c == nil {
		return true
	}
	if c.IsComposite() {
		if len(c.Rules) == 0 {
			return true
		}
		for _, r := range c.Rules {
			held := r.Holds(items)
			if c.Clause == ClauseOr && held {
				return true
			}
			if c.Clause == ClauseAnd && !held {
				return false
			}
		}
		return c.Clause == ClauseAnd
	}

	var v float64
	for _, item := range items {
		if c.Context == nil || !c.Context.Matches(item) {
			continue
		}
		if c.Measure == MeasureQuantity {
			v += float64(item.Quantity)
		} else {
			v += item.LineTotal()
		}
	}
	if c.Min != nil && v < *c.Min {
		return false
	}
	return c.Max == nil || v <= *c.Max
}

// ValidateCondition checks a condition tree: ids present and unique, no
// rule inside itself, composites with a known clause, leaves with a known
// measure, a valid context and a sane bound.
func ValidateCondition(c *Condition) error {
	if c == nil {
		return nil
	}
	return validateCondition(c, make(map[string]struct{}), make(map[*Condition]struct{}))
}

func validateCondition(c *Condition, ids map[string]struct{}, ancestors map[*Condition]struct{}) error {
	if c == nil {
		return fmt.Errorf("%w: empty condition rule", ErrInvalidDiscount)
	}
	if _, cyclic := ancestors[c]; cyclic {
		return fmt.Errorf("%w: condition %q contains itself", ErrInvalidDiscount, c.ID)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: condition id is required", ErrInvalidDiscount)
	}
	if _, dup := ids[c.ID]; dup {
		return fmt.Errorf("%w: duplicate condition id %q", ErrInvalidDiscount, c.ID)
	}
	ids[c.ID] = struct{}{}

	if c.IsComposite() {
		if !c.Clause.Valid() {
			return fmt.Errorf("%w: unknown condition clause %q", ErrInvalidDiscount, c.Clause)
		}
		if c.Measure != "" || c.Context != nil || c.Min != nil || c.Max != nil {
			return fmt.Errorf("%w: composite condition %q cannot carry a bound", ErrInvalidDiscount, c.ID)
		}
		ancestors[c] = struct{}{}
		defer delete(ancestors, c)
		for _, r := range c.Rules {
			if err := validateCondition(r, ids, ancestors); err != nil {
				return err
			}
		}
		return nil
	}

	if len(c.Rules) > 0 {
		return fmt.Errorf("%w: condition %q has rules but no clause", ErrInvalidDiscount, c.ID)
	}
	if !c.Measure.Valid() {
		return fmt.Errorf("%w: unknown condition measure %q", ErrInvalidDiscount, c.Measure)
	}
	if c.Context == nil {
		return fmt.Errorf("%w: condition %q needs a context", ErrInvalidDiscount, c.ID)
	}
	if err := c.Context.Validate(); err != nil {
		return err
	}
	if c.Min == nil && c.Max == nil {
		return fmt.Errorf("%w: condition %q needs a min or a max", ErrInvalidDiscount, c.ID)
	}
	for _, b := range []*float64{c.Min, c.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0) || *b < 0) {
			return fmt.Errorf("%w: condition %q bound must be a non-negative number", ErrInvalidDiscount, c.ID)
		}
	}
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return fmt.Errorf("%w: condition %q min exceeds max", ErrInvalidDiscount, c.ID)
	}
	return nil
}

// Clone deep-copies the condition tree.
func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}
	cp := &Condition{ID: c.ID, Clause: c.Clause, Measure: c.Measure}
	if c.Context != nil {
		ctx := *c.Context
		cp.Context = &ctx
	}
	cp.Min = cloneFloat(c.Min)
	cp.Max = cloneFloat(c.Max)
	if c.Rules != nil {
		cp.Rules = make([]*Condition, 0, len(c.Rules))
		for _, r := range c.Rules {
			cp.Rules = append(cp.Rules, r.Clone())
		}
	}
	return cp
}

// Walk visits c and every rule below it, parents first.
func (c *Condition) Walk(fn func(*Condition)) {
	if c == nil {
		return
	}
	fn(c)
	for _, r := range c.Rules {
		r.Walk(fn)
	}
}

// Matches reports whether a cart line falls under the context.
func (ctx DiscountContext) Matches(item CartItem) bool {
	switch ctx.Obj {
	case ContextStore:
		return true
	case ContextCategory:
		return item.Category == ctx.ID
	case ContextProduct:
		return item.ProductID == ctx.ID
	}
	return false
}

// Validate checks the context object and its id.
func (ctx DiscountContext) Validate() error {
	if !ctx.Obj.Valid() {
		return fmt.Errorf("%w: unknown context %q", ErrInvalidDiscount, ctx.Obj)
	}
	if ctx.Obj != ContextStore && ctx.ID == "" {
		return fmt.Errorf("%w: %s context requires an id", ErrInvalidDiscount, ctx.Obj)
	}
	return nil
}

func (i CartItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// ActiveAt reports whether t falls in the discount's validity window.
// ValidFrom is inclusive and ValidUntil exclusive; an unset end is open.
func (s *SimpleDiscount) ActiveAt(t time.Time) bool {
	if s.ValidFrom != nil && t.Before(*s.ValidFrom) {
		return false
	}
	return s.ValidUntil == nil || t.Before(*s.ValidUntil)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// FindRule returns the rule with id under c and its composite parent,
// which is nil when the match is c itself.
func (c *Condition) FindRule(id string) (found, parent *Condition) {
	if c == nil {
		return nil, nil
	}
	if c.ID == id {
		return c, nil
	}
	for _, r := range c.Rules {
		if r != nil && r.ID == id {
			return r, c
		}
		if f, p := r.FindRule(id); f != nil {
			return f, p
		}
	}
	return nil, nil
}

// RemoveRule drops the rule with id and everything below it. The top of
// the condition is removed by clearing it on the discount instead.
func (c *Condition) RemoveRule(id string) error {
	found, parent := c.FindRule(id)
	if found == nil {
		return fmt.Errorf("%w: condition rule %s", ErrDiscountNotFound, id)
	}
	if parent == nil {
		return fmt.Errorf("%w: the top condition is cleared, not removed", ErrInvalidDiscount)
	}
	for i, r := range parent.Rules {
		if r == found {
			parent.Rules = append(parent.Rules[:i:i], parent.Rules[i+1:]...)
			break
		}
	}
	return nil
}
