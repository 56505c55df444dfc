package services

import (
	"math"
	"time"

	"discount-service/models"
)

// CalculateReduction prices items at time now and returns the subtotal and
// the reduction root grants, capped at the subtotal. Amounts are rounded to
// cents.
func CalculateReduction(root models.Discount, items []models.CartItem, now time.Time) (subtotal, reduction float64) {
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	reduction, _ = evaluate(root, items, now)
	if reduction > subtotal {
		reduction = subtotal
	}
	return roundCents(subtotal), roundCents(reduction)
}

// evaluate returns the reduction d grants and whether d applies at all. A
// discount applies when its own condition holds and, for simple discounts,
// now is inside the validity window. An and discount applies only when all
// of its children do; or and xor need at least one.
func evaluate(d models.Discount, items []models.CartItem, now time.Time) (float64, bool) {
	switch v := d.(type) {
	case *models.SimpleDiscount:
		if v == nil || !v.ActiveAt(now) || !v.Condition.Holds(items) {
			return 0, false
		}
		var base float64
		for _, item := range items {
			if v.Context.Matches(item) {
				base += item.LineTotal()
			}
		}
		return base * v.Percentage / 100, true
	case *models.ComplexDiscount:
		if v == nil || !v.Condition.Holds(items) {
			return 0, false
		}
		switch v.Type {
		case models.ComplexAnd:
			var sum float64
			for _, child := range v.Discounts {
				r, ok := evaluate(child, items, now)
				if !ok {
					return 0, false
				}
				sum += r
			}
			return sum, true
		case models.ComplexOr:
			var sum float64
			applied := false
			for _, child := range v.Discounts {
				if r, ok := evaluate(child, items, now); ok {
					sum += r
					applied = true
				}
			}
			return sum, applied
		case models.ComplexXor:
			return pickOne(v, items, now)
		}
	}
	return 0, false
}

// pickOne applies exactly one of the children of an xor discount that
// apply. Children granting nothing are skipped by every rule.
func pickOne(c *models.ComplexDiscount, items []models.CartItem, now time.Time) (float64, bool) {
	rule := models.DecisionFirst
	if c.DecisionRule != nil {
		rule = *c.DecisionRule
	}
	var chosen float64
	applied, found := false, false
	for _, child := range c.Discounts {
		r, ok := evaluate(child, items, now)
		if !ok {
			continue
		}
		applied = true
		if r <= 0 {
			continue
		}
		switch {
		case !found:
			chosen, found = r, true
			if rule == models.DecisionFirst {
				return chosen, true
			}
		case rule == models.DecisionMax && r > chosen:
			chosen = r
		case rule == models.DecisionMin && r < chosen:
			chosen = r
		}
	}
	return chosen, applied
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
