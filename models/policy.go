package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscountPolicy is a store's authoritative discount tree, stored in Postgres.
type DiscountPolicy struct {
	ID        uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StoreID   string       `gorm:"type:varchar(64);uniqueIndex;not null" json:"store_id"`
	Root      DiscountTree `gorm:"type:jsonb;not null" json:"root"`
	Version   int          `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewDiscountPolicy returns a policy whose root is an empty "and" discount.
func NewDiscountPolicy(storeID string) *DiscountPolicy {
	return &DiscountPolicy{
		ID:      uuid.New(),
		StoreID: storeID,
		Root: DiscountTree{Root: &ComplexDiscount{
			ID:        uuid.NewString(),
			Type:      ComplexAnd,
			Discounts: []Discount{},
		}},
		Version: 1,
	}
}

// DiscountKind selects which variant a create request builds.
type DiscountKind string

const (
	KindSimple  DiscountKind = "simple"
	KindComplex DiscountKind = "complex"
)

// CreateDiscountRequest adds a discount under ParentID (empty means the root).
type CreateDiscountRequest struct {
	ParentID     string           `json:"parent_id"`
	Kind         DiscountKind     `json:"kind" binding:"required,oneof=simple complex"`
	Percentage   *float64         `json:"percentage"`
	Context      *DiscountContext `json:"context"`
	Type         ComplexType      `json:"type"`
	DecisionRule *DecisionRule    `json:"decision_rule"`
	ValidFrom    *time.Time       `json:"valid_from"`
	ValidUntil   *time.Time       `json:"valid_until"`
	// Condition is attached as given. ConditionType instead starts an empty
	// composite condition with that clause for rules to be added to later.
	Condition     *Condition      `json:"condition"`
	ConditionType ConditionClause `json:"condition_type"`
}

// EditSimpleDiscountRequest updates whichever fields are present.
// ClearValidity removes the validity window before ValidFrom and
// ValidUntil are applied.
type EditSimpleDiscountRequest struct {
	Percentage    *float64         `json:"percentage"`
	Context       *DiscountContext `json:"context"`
	ValidFrom     *time.Time       `json:"valid_from"`
	ValidUntil    *time.Time       `json:"valid_until"`
	ClearValidity bool             `json:"clear_validity"`
}

// SetConditionRequest replaces a discount's condition; null removes it.
// Rules without an id are given one.
type SetConditionRequest struct {
	Condition *Condition `json:"condition"`
}

// AddConditionRuleRequest appends Rule to the composite ParentID of a
// discount's condition (empty means the top of the condition).
type AddConditionRuleRequest struct {
	ParentID string     `json:"parent_id"`
	Rule     *Condition `json:"rule" binding:"required"`
}

// EditComplexDiscountRequest updates whichever fields are present.
type EditComplexDiscountRequest struct {
	Type         *ComplexType  `json:"type"`
	DecisionRule *DecisionRule `json:"decision_rule"`
}

type MoveDiscountRequest struct {
	DestID string `json:"dest_id" binding:"required"`
}

// CartItem is one line of a cart being priced.
type CartItem struct {
	ProductID string  `json:"product_id" binding:"required"`
	Category  string  `json:"category"`
	Price     float64 `json:"price" binding:"gte=0"`
	Quantity  int     `json:"quantity" binding:"required,gte=1"`
}

// CalculateDiscountRequest prices Items at At, or now when At is absent.
type CalculateDiscountRequest struct {
	Items []CartItem `json:"items" binding:"required,min=1,dive"`
	At    *time.Time `json:"at"`
}

type CalculateDiscountResponse struct {
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	Total          float64 `json:"total"`
}

// Policy change event types.
const (
	EventDiscountAdded   = "discount_added"
	EventDiscountRemoved = "discount_removed"
	EventDiscountMoved   = "discount_moved"
	EventDiscountEdited  = "discount_edited"

	EventDiscountConditionChanged = "discount_condition_changed"
)

// DiscountPolicyEvent is published to SNS and Kafka after every mutation.
type DiscountPolicyEvent struct {
	EventType  string    `json:"event_type"`
	StoreID    string    `json:"store_id"`
	DiscountID string    `json:"discount_id"`
	Version    int       `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProductEvent is consumed from the product events queue.
type ProductEvent struct {
	EventType string `json:"event_type"`
	ProductID string `json:"product_id"`
}
