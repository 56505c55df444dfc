package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xorRule(r DecisionRule) *DecisionRule { return &r }

func TestPredicates_ExclusiveAndExhaustive(t *testing.T) {
	var nilSimple *SimpleDiscount
	var nilComplex *ComplexDiscount

	cases := []struct {
		name    string
		d       Discount
		simple  bool
		complex bool
	}{
		{"simple", &SimpleDiscount{ID: "s"}, true, false},
		{"complex", &ComplexDiscount{ID: "c"}, false, true},
		{"nil interface", nil, false, false},
		{"nil simple pointer", nilSimple, false, false},
		{"nil complex pointer", nilComplex, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.simple, IsDiscountSimple(tc.d))
			assert.Equal(t, tc.complex, IsDiscountComplex(tc.d))
			if tc.simple || tc.complex {
				assert.NoError(t, CheckDiscountShape(tc.d))
			} else {
				assert.ErrorIs(t, CheckDiscountShape(tc.d), ErrMalformedDiscount)
			}
		})
	}
}

func TestSimpleDiscount_Validate(t *testing.T) {
	valid := []SimpleDiscount{
		{ID: "a", Percentage: 0, Context: DiscountContext{Obj: ContextStore}},
		{ID: "b", Percentage: 100, Context: DiscountContext{Obj: ContextCategory, ID: "Dairy"}},
		{ID: "c", Percentage: 33.3, Context: DiscountContext{Obj: ContextProduct, ID: "p-1"}},
	}
	for _, d := range valid {
		assert.NoError(t, d.Validate(), d.ID)
	}

	invalid := []SimpleDiscount{
		{ID: "neg", Percentage: -1, Context: DiscountContext{Obj: ContextStore}},
		{ID: "big", Percentage: 100.5, Context: DiscountContext{Obj: ContextStore}},
		{ID: "nan", Percentage: math.NaN(), Context: DiscountContext{Obj: ContextStore}},
		{ID: "inf", Percentage: math.Inf(1), Context: DiscountContext{Obj: ContextStore}},
		{ID: "noid", Percentage: 5, Context: DiscountContext{Obj: ContextProduct}},
		{ID: "obj", Percentage: 5, Context: DiscountContext{Obj: "brand", ID: "x"}},
	}
	for _, d := range invalid {
		assert.ErrorIs(t, d.Validate(), ErrInvalidDiscount, d.ID)
	}
}

func TestComplexDiscount_Validate_DecisionRule(t *testing.T) {
	assert.NoError(t, (&ComplexDiscount{ID: "x", Type: ComplexXor, DecisionRule: xorRule(DecisionMax)}).Validate())
	assert.ErrorIs(t, (&ComplexDiscount{ID: "x", Type: ComplexXor}).Validate(), ErrInvalidDiscount)
	assert.ErrorIs(t, (&ComplexDiscount{ID: "x", Type: ComplexXor, DecisionRule: xorRule("median")}).Validate(), ErrInvalidDiscount)
	assert.ErrorIs(t, (&ComplexDiscount{ID: "a", Type: ComplexAnd, DecisionRule: xorRule(DecisionFirst)}).Validate(), ErrInvalidDiscount)
	assert.ErrorIs(t, (&ComplexDiscount{ID: "n", Type: "nand"}).Validate(), ErrInvalidDiscount)
}

func TestValidateTree(t *testing.T) {
	leaf := &SimpleDiscount{ID: "s1", Percentage: 10, Context: DiscountContext{Obj: ContextStore}}
	root := &ComplexDiscount{ID: "r", Type: ComplexAnd, Discounts: []Discount{
		leaf,
		&ComplexDiscount{ID: "c", Type: ComplexXor, DecisionRule: xorRule(DecisionFirst)},
	}}
	require.NoError(t, ValidateTree(root))

	dup := &ComplexDiscount{ID: "r", Type: ComplexAnd, Discounts: []Discount{leaf, leaf}}
	assert.ErrorIs(t, ValidateTree(dup), ErrInvalidDiscount)

	cyclic := &ComplexDiscount{ID: "loop", Type: ComplexOr}
	cyclic.Discounts = []Discount{cyclic}
	err := ValidateTree(cyclic)
	assert.ErrorIs(t, err, ErrInvalidDiscount)
	assert.Contains(t, err.Error(), "contains itself")

	missingID := &ComplexDiscount{ID: "r", Type: ComplexAnd, Discounts: []Discount{&SimpleDiscount{Percentage: 1, Context: DiscountContext{Obj: ContextStore}}}}
	assert.ErrorIs(t, ValidateTree(missingID), ErrInvalidDiscount)

	malformed := &ComplexDiscount{ID: "r", Type: ComplexAnd, Discounts: []Discount{nil}}
	assert.ErrorIs(t, ValidateTree(malformed), ErrMalformedDiscount)
}

func TestUnmarshalDiscount_WireShapes(t *testing.T) {
	raw := `{
		"id": "r", "type": "xor", "decision_rule": "min",
		"discounts": [
			{"id": "s1", "percentage": 10, "context": {"obj": "store"}},
			{"id": "c1", "type": "and", "discounts": []}
		]
	}`
	d, err := UnmarshalDiscount([]byte(raw))
	require.NoError(t, err)
	require.True(t, IsDiscountComplex(d))

	root := d.(*ComplexDiscount)
	assert.Equal(t, ComplexXor, root.Type)
	require.NotNil(t, root.DecisionRule)
	assert.Equal(t, DecisionMin, *root.DecisionRule)
	require.Len(t, root.Discounts, 2)
	assert.True(t, IsDiscountSimple(root.Discounts[0]))
	assert.True(t, IsDiscountComplex(root.Discounts[1]))
	assert.NoError(t, ValidateTree(d))
}

func TestUnmarshalDiscount_Malformed(t *testing.T) {
	for _, raw := range []string{
		`null`,
		`{}`,
		`{"id": "x", "percentage": 10}`,
		`{"id": "x", "type": "and"}`,
		`{"id": "x", "percentage": 5, "context": {"obj": "store"}, "discounts": []}`,
		`{"id": "r", "type": "and", "discounts": [{"id": "bad"}]}`,
		`[1, 2]`,
	} {
		_, err := UnmarshalDiscount([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedDiscount, raw)
	}
}

func TestComplexDiscount_MarshalEmptyChildren(t *testing.T) {
	b, err := json.Marshal(&ComplexDiscount{ID: "r", Type: ComplexAnd})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r","type":"and","discounts":[]}`, string(b))
}

func TestDetachAndFind(t *testing.T) {
	inner := &ComplexDiscount{ID: "c", Type: ComplexOr, Discounts: []Discount{
		&SimpleDiscount{ID: "s2", Percentage: 5, Context: DiscountContext{Obj: ContextStore}},
	}}
	root := &ComplexDiscount{ID: "r", Type: ComplexAnd, Discounts: []Discount{
		&SimpleDiscount{ID: "s1", Percentage: 10, Context: DiscountContext{Obj: ContextProduct, ID: "p-1"}},
		inner,
	}}

	found, parent := FindDiscount(root, "s2")
	require.NotNil(t, found)
	assert.Equal(t, inner, parent)

	assert.True(t, ContainsDiscount(inner, "s2"))
	assert.False(t, ContainsDiscount(inner, "s1"))

	detached, err := DetachDiscount(root, "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", detached.GetID())
	assert.Empty(t, inner.Discounts)
	assert.Len(t, root.Discounts, 2, "an emptied complex discount is kept")

	_, err = DetachDiscount(root, "r")
	assert.ErrorIs(t, err, ErrInvalidDiscount)
	_, err = DetachDiscount(root, "nope")
	assert.ErrorIs(t, err, ErrDiscountNotFound)

	assert.Equal(t, []string{"p-1"}, ProductIDs(root))
}

func TestCloneDiscount_IsDeep(t *testing.T) {
	root := &ComplexDiscount{ID: "r", Type: ComplexXor, DecisionRule: xorRule(DecisionMax), Discounts: []Discount{
		&SimpleDiscount{ID: "s1", Percentage: 10, Context: DiscountContext{Obj: ContextStore}},
	}}
	cp := CloneDiscount(root).(*ComplexDiscount)
	cp.Discounts[0].(*SimpleDiscount).Percentage = 50
	*cp.DecisionRule = DecisionMin

	assert.Equal(t, 10.0, root.Discounts[0].(*SimpleDiscount).Percentage)
	assert.Equal(t, DecisionMax, *root.DecisionRule)
}

func TestDiscountTree_ScanValue(t *testing.T) {
	policy := NewDiscountPolicy("store-1")
	v, err := policy.Root.Value()
	require.NoError(t, err)

	var scanned DiscountTree
	require.NoError(t, scanned.Scan([]byte(v.(string))))
	assert.Equal(t, policy.Root.Root.ID, scanned.Root.ID)
	assert.Equal(t, ComplexAnd, scanned.Root.Type)

	assert.ErrorIs(t, scanned.Scan(`{"id":"s","percentage":1,"context":{"obj":"store"}}`), ErrMalformedDiscount)
	assert.Error(t, scanned.Scan(42))
}
