package views

import (
	"fmt"
	"strconv"
	"strings"

	"discount-service/models"
)

// ProductIDToString maps a product id to its display name. It must not
// fail: unknown ids map to a fallback string.
type ProductIDToString func(productID string) string

var decisionRuleText = map[models.DecisionRule]string{
	models.DecisionFirst: "first discount",
	models.DecisionMax:   "best discount value",
	models.DecisionMin:   "worst discount value",
}

// DecisionRuleToString returns the label of an xor decision rule.
func DecisionRuleToString(rule models.DecisionRule) string {
	if text, ok := decisionRuleText[rule]; ok {
		return text
	}
	return string(rule)
}

// DiscountToString renders the one-line label of a discount node.
func DiscountToString(d models.Discount, productIDToString ProductIDToString) (string, error) {
	switch t := d.(type) {
	case *models.SimpleDiscount:
		if t == nil {
			break
		}
		var on string
		switch t.Context.Obj {
		case models.ContextStore:
			on = "all products"
		case models.ContextCategory:
			on = fmt.Sprintf("all products in the %s category", t.Context.ID)
		case models.ContextProduct:
			on = fmt.Sprintf(`product "%s"`, resolve(productIDToString, t.Context.ID))
		default:
			return "", fmt.Errorf("%w: unknown context %q", models.ErrInvalidDiscount, t.Context.Obj)
		}
		return fmt.Sprintf("%s%% discount on %s", formatPercentage(t.Percentage), on), nil
	case *models.ComplexDiscount:
		if t == nil {
			break
		}
		if !t.Type.Valid() {
			return "", fmt.Errorf("%w: unknown complex type %q", models.ErrInvalidDiscount, t.Type)
		}
		label := strings.ToUpper(string(t.Type))
		if t.Type != models.ComplexXor {
			return label, nil
		}
		if t.DecisionRule == nil || !t.DecisionRule.Valid() {
			return "", fmt.Errorf("%w: xor discount %q has no valid decision rule", models.ErrInvalidDiscount, t.ID)
		}
		return label + " - decision rule: " + DecisionRuleToString(*t.DecisionRule), nil
	}
	return "", models.CheckDiscountShape(d)
}

// ResolverWithFallback looks product names up in names and falls back to
// the raw id.
func ResolverWithFallback(names map[string]string) ProductIDToString {
	return func(productID string) string {
		if name, ok := names[productID]; ok && name != "" {
			return name
		}
		return productID
	}
}

func resolve(fn ProductIDToString, productID string) string {
	if fn == nil {
		return productID
	}
	return fn(productID)
}

func formatPercentage(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
