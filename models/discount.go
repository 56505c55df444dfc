package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ContextObj names what a simple discount applies to.
type ContextObj string

const (
	ContextStore    ContextObj = "store"
	ContextCategory ContextObj = "category"
	ContextProduct  ContextObj = "product"
)

// ComplexType is the boolean composition of a complex discount.
type ComplexType string

const (
	ComplexAnd ComplexType = "and"
	ComplexOr  ComplexType = "or"
	ComplexXor ComplexType = "xor"
)

// DecisionRule picks the single child an xor discount applies.
type DecisionRule string

const (
	DecisionFirst DecisionRule = "first"
	DecisionMax   DecisionRule = "max"
	DecisionMin   DecisionRule = "min"
)

var (
	ErrMalformedDiscount = errors.New("malformed discount")
	ErrInvalidDiscount   = errors.New("invalid discount")
	ErrDiscountNotFound  = errors.New("discount not found")
)

// Discount is either a *SimpleDiscount or a *ComplexDiscount.
type Discount interface {
	GetID() string
	isDiscount()
}

// DiscountContext scopes a simple discount. ID is a category name for
// category discounts and a product id for product discounts; it is unused
// for store-wide discounts.
type DiscountContext struct {
	Obj ContextObj `json:"obj"`
	ID  string     `json:"id,omitempty"`
}

// SimpleDiscount is a percentage off everything its context matches. It
// applies only inside its validity window and when its condition holds.
type SimpleDiscount struct {
	ID         string          `json:"id"`
	Percentage float64         `json:"percentage"`
	Context    DiscountContext `json:"context"`
	ValidFrom  *time.Time      `json:"valid_from,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	Condition  *Condition      `json:"condition,omitempty"`
}

func (s *SimpleDiscount) GetID() string { return s.ID }
func (*SimpleDiscount) isDiscount()     {}

// ComplexDiscount composes child discounts.
type ComplexDiscount struct {
	ID           string        `json:"id"`
	Type         ComplexType   `json:"type"`
	Discounts    []Discount    `json:"discounts"`
	DecisionRule *DecisionRule `json:"decision_rule,omitempty"`
	Condition    *Condition    `json:"condition,omitempty"`
}

func (c *ComplexDiscount) GetID() string { return c.ID }
func (*ComplexDiscount) isDiscount()     {}

// IsDiscountSimple reports whether d is a non-nil simple discount.
func IsDiscountSimple(d Discount) bool {
	s, ok := d.(*SimpleDiscount)
	return ok && s != nil
}

// IsDiscountComplex reports whether d is a non-nil complex discount.
func IsDiscountComplex(d Discount) bool {
	c, ok := d.(*ComplexDiscount)
	return ok && c != nil
}

// CheckDiscountShape fails with ErrMalformedDiscount when d is neither
// variant.
func CheckDiscountShape(d Discount) error {
	if IsDiscountSimple(d) || IsDiscountComplex(d) {
		return nil
	}
	return fmt.Errorf("%w: got %T", ErrMalformedDiscount, d)
}

// Valid reports whether the context object is one of the known values.
func (o ContextObj) Valid() bool {
	switch o {
	case ContextStore, ContextCategory, ContextProduct:
		return true
	}
	return false
}

func (t ComplexType) Valid() bool {
	switch t {
	case ComplexAnd, ComplexOr, ComplexXor:
		return true
	}
	return false
}

func (r DecisionRule) Valid() bool {
	switch r {
	case DecisionFirst, DecisionMax, DecisionMin:
		return true
	}
	return false
}

// Validate checks the node's own fields.
func (s *SimpleDiscount) Validate() error {
	if math.IsNaN(s.Percentage) || math.IsInf(s.Percentage, 0) || s.Percentage < 0 || s.Percentage > 100 {
		return fmt.Errorf("%w: percentage must be within [0,100], got %v", ErrInvalidDiscount, s.Percentage)
	}
	if err := s.Context.Validate(); err != nil {
		return err
	}
	if s.ValidFrom != nil && s.ValidUntil != nil && !s.ValidFrom.Before(*s.ValidUntil) {
		return fmt.Errorf("%w: valid_from must be before valid_until", ErrInvalidDiscount)
	}
	return ValidateCondition(s.Condition)
}

// Validate checks the node's own fields, not its children.
func (c *ComplexDiscount) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown complex type %q", ErrInvalidDiscount, c.Type)
	}
	if c.Type == ComplexXor {
		if c.DecisionRule == nil {
			return fmt.Errorf("%w: xor discount requires a decision rule", ErrInvalidDiscount)
		}
		if !c.DecisionRule.Valid() {
			return fmt.Errorf("%w: unknown decision rule %q", ErrInvalidDiscount, *c.DecisionRule)
		}
	} else if c.DecisionRule != nil {
		return fmt.Errorf("%w: decision rule only applies to xor discounts", ErrInvalidDiscount)
	}
	return ValidateCondition(c.Condition)
}

// ValidateTree checks every node under root, ids included: each id must be
// present and unique and no complex node may appear inside itself.
func ValidateTree(root Discount) error {
	v := &treeValidator{
		ids:       make(map[string]struct{}),
		ancestors: make(map[*ComplexDiscount]struct{}),
	}
	return v.walk(root)
}

type treeValidator struct {
	ids       map[string]struct{}
	ancestors map[*ComplexDiscount]struct{}
}

func (v *treeValidator) walk(d Discount) error {
	if err := CheckDiscountShape(d); err != nil {
		return err
	}
	if c, ok := d.(*ComplexDiscount); ok {
		if _, cyclic := v.ancestors[c]; cyclic {
			return fmt.Errorf("%w: discount %q contains itself", ErrInvalidDiscount, c.ID)
		}
	}

	id := d.GetID()
	if id == "" {
		return fmt.Errorf("%w: discount id is required", ErrInvalidDiscount)
	}
	if _, dup := v.ids[id]; dup {
		return fmt.Errorf("%w: duplicate discount id %q", ErrInvalidDiscount, id)
	}
	v.ids[id] = struct{}{}

	switch t := d.(type) {
	case *SimpleDiscount:
		return t.Validate()
	case *ComplexDiscount:
		if err := t.Validate(); err != nil {
			return err
		}
		v.ancestors[t] = struct{}{}
		defer delete(v.ancestors, t)
		for _, child := range t.Discounts {
			if err := v.walk(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarshalJSON always emits a discounts array, empty or not.
func (c ComplexDiscount) MarshalJSON() ([]byte, error) {
	type alias ComplexDiscount
	a := alias(c)
	if a.Discounts == nil {
		a.Discounts = []Discount{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON decodes children through UnmarshalDiscount.
func (c *ComplexDiscount) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID           string            `json:"id"`
		Type         ComplexType       `json:"type"`
		Discounts    []json.RawMessage `json:"discounts"`
		DecisionRule *DecisionRule     `json:"decision_rule"`
		Condition    *Condition        `json:"condition"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDiscount, err)
	}
	children := make([]Discount, 0, len(wire.Discounts))
	for i, raw := range wire.Discounts {
		child, err := UnmarshalDiscount(raw)
		if err != nil {
			return fmt.Errorf("discounts[%d]: %w", i, err)
		}
		children = append(children, child)
	}
	*c = ComplexDiscount{
		ID:           wire.ID,
		Type:         wire.Type,
		Discounts:    children,
		DecisionRule: wire.DecisionRule,
		Condition:    wire.Condition,
	}
	return nil
}

// UnmarshalDiscount decodes either wire shape. A simple discount carries
// percentage and context and no discounts; a complex one carries type and
// discounts. Anything else is ErrMalformedDiscount.
func UnmarshalDiscount(data []byte) (Discount, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDiscount, err)
	}
	_, hasPercentage := shape["percentage"]
	_, hasContext := shape["context"]
	_, hasType := shape["type"]
	_, hasDiscounts := shape["discounts"]

	switch {
	case hasPercentage && hasContext && !hasDiscounts:
		var s SimpleDiscount
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDiscount, err)
		}
		return &s, nil
	case hasType && hasDiscounts:
		var c ComplexDiscount
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return &c, nil
	default:
		return nil, fmt.Errorf("%w: neither simple nor complex shape", ErrMalformedDiscount)
	}
}
