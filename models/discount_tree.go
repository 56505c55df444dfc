package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// FindDiscount searches the tree under root depth-first. parent is nil when
// the match is root itself.
func FindDiscount(root Discount, id string) (found Discount, parent *ComplexDiscount) {
	if root == nil || CheckDiscountShape(root) != nil {
		return nil, nil
	}
	if root.GetID() == id {
		return root, nil
	}
	c, ok := root.(*ComplexDiscount)
	if !ok {
		return nil, nil
	}
	for _, child := range c.Discounts {
		if child != nil && CheckDiscountShape(child) == nil && child.GetID() == id {
			return child, c
		}
		if f, p := FindDiscount(child, id); f != nil {
			return f, p
		}
	}
	return nil, nil
}

// DetachDiscount removes the node with id from wherever it appears under
// root and returns it. root itself cannot be detached.
func DetachDiscount(root *ComplexDiscount, id string) (Discount, error) {
	found, parent := FindDiscount(root, id)
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrDiscountNotFound, id)
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: the root discount cannot be removed", ErrInvalidDiscount)
	}
	for i, child := range parent.Discounts {
		if child == found {
			parent.Discounts = append(parent.Discounts[:i:i], parent.Discounts[i+1:]...)
			break
		}
	}
	return found, nil
}

// ContainsDiscount reports whether id is d or any node below it.
func ContainsDiscount(d Discount, id string) bool {
	found, _ := FindDiscount(d, id)
	return found != nil
}

// CloneDiscount deep-copies a tree.
func CloneDiscount(d Discount) Discount {
	switch t := d.(type) {
	case *SimpleDiscount:
		if t == nil {
			return nil
		}
		cp := *t
		cp.ValidFrom = cloneTime(t.ValidFrom)
		cp.ValidUntil = cloneTime(t.ValidUntil)
		cp.Condition = t.Condition.Clone()
		return &cp
	case *ComplexDiscount:
		if t == nil {
			return nil
		}
		cp := &ComplexDiscount{ID: t.ID, Type: t.Type, Condition: t.Condition.Clone()}
		if t.DecisionRule != nil {
			rule := *t.DecisionRule
			cp.DecisionRule = &rule
		}
		cp.Discounts = make([]Discount, 0, len(t.Discounts))
		for _, child := range t.Discounts {
			cp.Discounts = append(cp.Discounts, CloneDiscount(child))
		}
		return cp
	}
	return nil
}

// ProductIDs lists the distinct product ids referenced by product-scoped
// discounts under d, in tree order.
func ProductIDs(d Discount) []string {
	seen := make(map[string]struct{})
	var ids []string
	var walk func(Discount)
	walk = func(d Discount) {
		switch t := d.(type) {
		case *SimpleDiscount:
			if t == nil || t.Context.Obj != ContextProduct {
				return
			}
			if _, ok := seen[t.Context.ID]; !ok {
				seen[t.Context.ID] = struct{}{}
				ids = append(ids, t.Context.ID)
			}
		case *ComplexDiscount:
			if t == nil {
				return
			}
			for _, child := range t.Discounts {
				walk(child)
			}
		}
	}
	walk(d)
	return ids
}

// DiscountTree is the jsonb column holding a store's root discount.
type DiscountTree struct {
	Root *ComplexDiscount
}

// Value implements driver.Valuer.
func (t DiscountTree) Value() (driver.Value, error) {
	if t.Root == nil {
		return nil, errors.New("discount tree has no root")
	}
	b, err := json.Marshal(t.Root)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *DiscountTree) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported discount tree column type %T", value)
	}
	root, err := UnmarshalDiscount(data)
	if err != nil {
		return err
	}
	c, ok := root.(*ComplexDiscount)
	if !ok {
		return fmt.Errorf("%w: root discount must be complex", ErrMalformedDiscount)
	}
	t.Root = c
	return nil
}

func (t DiscountTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Root)
}

func (t *DiscountTree) UnmarshalJSON(data []byte) error {
	return t.Scan(data)
}
