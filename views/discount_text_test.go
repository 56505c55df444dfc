package views_test

import (
	"strings"
	"testing"

	"discount-service/models"
	"discount-service/views"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(r models.DecisionRule) *models.DecisionRule { return &r }

func TestDiscountToString_StoreContext_NeverResolves(t *testing.T) {
	called := false
	resolver := func(id string) string {
		called = true
		return id
	}

	for _, pct := range []float64{0, 10, 12.5, 100} {
		d := &models.SimpleDiscount{ID: "s", Percentage: pct, Context: models.DiscountContext{Obj: models.ContextStore}}
		label, err := views.DiscountToString(d, resolver)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(label, "on all products"), label)
	}
	assert.False(t, called)
}

func TestDiscountToString_PercentageFormatting(t *testing.T) {
	d := &models.SimpleDiscount{ID: "s", Percentage: 12.5, Context: models.DiscountContext{Obj: models.ContextStore}}
	label, err := views.DiscountToString(d, nil)
	require.NoError(t, err)
	assert.Equal(t, "12.5% discount on all products", label)

	d.Percentage = 10
	label, err = views.DiscountToString(d, nil)
	require.NoError(t, err)
	assert.Equal(t, "10% discount on all products", label)
}

func TestDiscountToString_CategoryContext(t *testing.T) {
	d := &models.SimpleDiscount{ID: "s", Percentage: 20, Context: models.DiscountContext{Obj: models.ContextCategory, ID: "Dairy"}}
	label, err := views.DiscountToString(d, nil)
	require.NoError(t, err)
	assert.Equal(t, "20% discount on all products in the Dairy category", label)
	assert.Contains(t, label, "Dairy")
	assert.Contains(t, label, "category")
}

func TestDiscountToString_ProductContext_UsesResolver(t *testing.T) {
	d := &models.SimpleDiscount{ID: "s", Percentage: 5, Context: models.DiscountContext{Obj: models.ContextProduct, ID: "p-1"}}
	resolver := views.ResolverWithFallback(map[string]string{"p-1": "Milk"})

	label, err := views.DiscountToString(d, resolver)
	require.NoError(t, err)
	assert.Equal(t, `5% discount on product "Milk"`, label)
	assert.NotContains(t, label, "p-1")
}

func TestDiscountToString_ProductContext_UnresolvedFallsBackToID(t *testing.T) {
	d := &models.SimpleDiscount{ID: "s", Percentage: 5, Context: models.DiscountContext{Obj: models.ContextProduct, ID: "p-404"}}

	label, err := views.DiscountToString(d, views.ResolverWithFallback(nil))
	require.NoError(t, err)
	assert.Equal(t, `5% discount on product "p-404"`, label)
}

func TestDiscountToString_ComplexWithoutDecisionRule(t *testing.T) {
	for _, typ := range []models.ComplexType{models.ComplexAnd, models.ComplexOr} {
		d := &models.ComplexDiscount{ID: "c", Type: typ}
		label, err := views.DiscountToString(d, nil)
		require.NoError(t, err)
		assert.Equal(t, strings.ToUpper(string(typ)), label)
	}
}

func TestDiscountToString_XorDecisionRules(t *testing.T) {
	cases := map[models.DecisionRule]string{
		models.DecisionFirst: "XOR - decision rule: first discount",
		models.DecisionMax:   "XOR - decision rule: best discount value",
		models.DecisionMin:   "XOR - decision rule: worst discount value",
	}
	for r, want := range cases {
		d := &models.ComplexDiscount{ID: "x", Type: models.ComplexXor, DecisionRule: rule(r)}
		label, err := views.DiscountToString(d, nil)
		require.NoError(t, err)
		assert.Equal(t, want, label)
	}
}

func TestDiscountToString_Malformed(t *testing.T) {
	var nilSimple *models.SimpleDiscount

	_, err := views.DiscountToString(nil, nil)
	assert.ErrorIs(t, err, models.ErrMalformedDiscount)

	_, err = views.DiscountToString(nilSimple, nil)
	assert.ErrorIs(t, err, models.ErrMalformedDiscount)
}

func TestDiscountToString_InvalidFieldsAreReported(t *testing.T) {
	_, err := views.DiscountToString(&models.SimpleDiscount{ID: "s", Percentage: 5, Context: models.DiscountContext{Obj: "brand", ID: "acme"}}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidDiscount)

	_, err = views.DiscountToString(&models.ComplexDiscount{ID: "x", Type: models.ComplexXor}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidDiscount)

	_, err = views.DiscountToString(&models.ComplexDiscount{ID: "x", Type: models.ComplexXor, DecisionRule: rule("median")}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidDiscount)

	_, err = views.DiscountToString(&models.ComplexDiscount{ID: "n", Type: "nand"}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidDiscount)
}
