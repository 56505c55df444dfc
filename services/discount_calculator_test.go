package services_test

import (
	"testing"
	"time"

	"discount-service/models"
	"discount-service/services"

	"github.com/stretchr/testify/assert"
)

func simple(id string, p float64, obj models.ContextObj, ctxID string) *models.SimpleDiscount {
	return &models.SimpleDiscount{ID: id, Percentage: p, Context: models.DiscountContext{Obj: obj, ID: ctxID}}
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var cart = []models.CartItem{
	{ProductID: "milk", Category: "Dairy", Price: 10, Quantity: 3},
	{ProductID: "bread", Category: "Bakery", Price: 5, Quantity: 2},
}

func TestCalculateReduction_Simple(t *testing.T) {
	cases := []struct {
		name string
		d    models.Discount
		want float64
	}{
		{"store", simple("s", 10, models.ContextStore, ""), 4},
		{"category", simple("s", 50, models.ContextCategory, "Bakery"), 5},
		{"product", simple("s", 20, models.ContextProduct, "milk"), 6},
		{"unmatched product", simple("s", 20, models.ContextProduct, "cheese"), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subtotal, reduction := services.CalculateReduction(tc.d, cart, now)
			assert.Equal(t, 40.0, subtotal)
			assert.Equal(t, tc.want, reduction)
		})
	}
}

func TestCalculateReduction_AndOrSum(t *testing.T) {
	for _, typ := range []models.ComplexType{models.ComplexAnd, models.ComplexOr} {
		root := &models.ComplexDiscount{ID: "r", Type: typ, Discounts: []models.Discount{
			simple("a", 10, models.ContextStore, ""),
			simple("b", 50, models.ContextCategory, "Bakery"),
		}}
		_, reduction := services.CalculateReduction(root, cart, now)
		assert.Equal(t, 9.0, reduction, string(typ))
	}
}

func TestCalculateReduction_XorRules(t *testing.T) {
	children := func() []models.Discount {
		return []models.Discount{
			simple("none", 30, models.ContextProduct, "cheese"),
			simple("bakery", 50, models.ContextCategory, "Bakery"),
			simple("store", 25, models.ContextStore, ""),
			simple("milk", 10, models.ContextProduct, "milk"),
		}
	}
	cases := map[models.DecisionRule]float64{
		models.DecisionFirst: 5,
		models.DecisionMax:   10,
		models.DecisionMin:   3,
	}
	for rule, want := range cases {
		r := rule
		root := &models.ComplexDiscount{ID: "x", Type: models.ComplexXor, DecisionRule: &r, Discounts: children()}
		_, reduction := services.CalculateReduction(root, cart, now)
		assert.Equal(t, want, reduction, string(rule))
	}
}

func TestCalculateReduction_CappedAtSubtotal(t *testing.T) {
	root := &models.ComplexDiscount{ID: "r", Type: models.ComplexAnd, Discounts: []models.Discount{
		simple("a", 80, models.ContextStore, ""),
		simple("b", 80, models.ContextStore, ""),
	}}
	subtotal, reduction := services.CalculateReduction(root, cart, now)
	assert.Equal(t, subtotal, reduction)
}

func TestCalculateReduction_EmptyTree(t *testing.T) {
	_, reduction := services.CalculateReduction(&models.ComplexDiscount{ID: "r", Type: models.ComplexAnd}, cart, now)
	assert.Zero(t, reduction)
}

func minQty(id, productID string, n float64) *models.Condition {
	return &models.Condition{
		ID:      id,
		Measure: models.MeasureQuantity,
		Context: &models.DiscountContext{Obj: models.ContextProduct, ID: productID},
		Min:     &n,
	}
}

func TestCalculateReduction_ConditionGatesSimple(t *testing.T) {
	d := simple("s", 10, models.ContextStore, "")
	d.Condition = minQty("c", "milk", 3)
	_, reduction := services.CalculateReduction(d, cart, now)
	assert.Equal(t, 4.0, reduction)

	d.Condition = minQty("c", "milk", 4)
	_, reduction = services.CalculateReduction(d, cart, now)
	assert.Zero(t, reduction)
}

func TestCalculateReduction_AndRequiresEveryChild(t *testing.T) {
	gated := simple("b", 50, models.ContextCategory, "Bakery")
	gated.Condition = minQty("c", "bread", 5)
	children := func() []models.Discount {
		return []models.Discount{simple("a", 10, models.ContextStore, ""), gated}
	}

	and := &models.ComplexDiscount{ID: "r", Type: models.ComplexAnd, Discounts: children()}
	_, reduction := services.CalculateReduction(and, cart, now)
	assert.Zero(t, reduction, "one child failing its condition blocks the and")

	or := &models.ComplexDiscount{ID: "r", Type: models.ComplexOr, Discounts: children()}
	_, reduction = services.CalculateReduction(or, cart, now)
	assert.Equal(t, 4.0, reduction, "or applies the children that hold")

	nested := &models.ComplexDiscount{ID: "top", Type: models.ComplexOr, Discounts: []models.Discount{
		and,
		simple("z", 5, models.ContextStore, ""),
	}}
	_, reduction = services.CalculateReduction(nested, cart, now)
	assert.Equal(t, 2.0, reduction)
}

func TestCalculateReduction_ComplexConditionAndClauses(t *testing.T) {
	amount := 30.0
	cond := &models.Condition{ID: "top", Clause: models.ClauseOr, Rules: []*models.Condition{
		minQty("q", "cheese", 1),
		{ID: "amt", Measure: models.MeasureAmount, Context: &models.DiscountContext{Obj: models.ContextCategory, ID: "Dairy"}, Min: &amount},
	}}
	root := &models.ComplexDiscount{ID: "r", Type: models.ComplexAnd, Condition: cond, Discounts: []models.Discount{
		simple("a", 10, models.ContextStore, ""),
	}}
	_, reduction := services.CalculateReduction(root, cart, now)
	assert.Equal(t, 4.0, reduction)

	cond.Clause = models.ClauseAnd
	_, reduction = services.CalculateReduction(root, cart, now)
	assert.Zero(t, reduction)
}

func TestCalculateReduction_XorSkipsInapplicableChildren(t *testing.T) {
	blocked := simple("big", 90, models.ContextStore, "")
	blocked.Condition = minQty("c", "milk", 10)
	r := models.DecisionMax
	root := &models.ComplexDiscount{ID: "x", Type: models.ComplexXor, DecisionRule: &r, Discounts: []models.Discount{
		blocked,
		simple("small", 10, models.ContextStore, ""),
	}}
	_, reduction := services.CalculateReduction(root, cart, now)
	assert.Equal(t, 4.0, reduction)
}

func TestCalculateReduction_ValidityWindow(t *testing.T) {
	from := now.Add(-time.Hour)
	until := now.Add(time.Hour)
	d := simple("s", 10, models.ContextStore, "")
	d.ValidFrom, d.ValidUntil = &from, &until

	_, reduction := services.CalculateReduction(d, cart, now)
	assert.Equal(t, 4.0, reduction)

	_, reduction = services.CalculateReduction(d, cart, until)
	assert.Zero(t, reduction, "valid_until is exclusive")

	_, reduction = services.CalculateReduction(d, cart, from.Add(-time.Second))
	assert.Zero(t, reduction)
}
