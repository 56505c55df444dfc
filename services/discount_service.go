package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"discount-service/models"
	aws_pkg "discount-service/pkg/aws"
	"discount-service/repository"
	"discount-service/views"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceError represents a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// EventProducer publishes policy change events to Kafka.
type EventProducer interface {
	SendDiscountEvent(ctx context.Context, evt models.DiscountPolicyEvent) error
}

// ChangeNotifier tells live sessions that a store's tree changed.
type ChangeNotifier interface {
	NotifyPolicyChanged(storeID string, version int)
}

// MetricsRecorder counts business events.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// DiscountService defines the discount policy business logic.
type DiscountService interface {
	GetDiscounts(ctx context.Context, storeID string) (*models.DiscountPolicy, *ServiceError)
	AddDiscount(ctx context.Context, storeID string, req *models.CreateDiscountRequest) (*models.DiscountPolicy, models.Discount, *ServiceError)
	RemoveDiscount(ctx context.Context, storeID, discountID string) (*models.DiscountPolicy, *ServiceError)
	MoveDiscount(ctx context.Context, storeID, srcID, destID string) (*models.DiscountPolicy, *ServiceError)
	EditSimpleDiscount(ctx context.Context, storeID, discountID string, req *models.EditSimpleDiscountRequest) (*models.DiscountPolicy, *ServiceError)
	EditComplexDiscount(ctx context.Context, storeID, discountID string, req *models.EditComplexDiscountRequest) (*models.DiscountPolicy, *ServiceError)
	SetDiscountCondition(ctx context.Context, storeID, discountID string, cond *models.Condition) (*models.DiscountPolicy, *ServiceError)
	AddConditionRule(ctx context.Context, storeID, discountID string, req *models.AddConditionRuleRequest) (*models.DiscountPolicy, *ServiceError)
	RemoveConditionRule(ctx context.Context, storeID, discountID, ruleID string) (*models.DiscountPolicy, *ServiceError)
	CalculateDiscount(ctx context.Context, storeID string, req *models.CalculateDiscountRequest) (*models.CalculateDiscountResponse, *ServiceError)
	ProductNameResolver(ctx context.Context, root models.Discount) views.ProductIDToString
}

type discountServiceImpl struct {
	repo        repository.DiscountPolicyRepository
	names       repository.ProductNameRepository
	snsClient   aws_pkg.SNSPublisher
	snsTopicArn string
	producer    EventProducer
	notifier    ChangeNotifier
	metrics     MetricsRecorder
	logger      *zap.Logger
}

// NewDiscountService creates a new DiscountService. names, snsClient,
// producer, notifier and metrics may be nil.
func NewDiscountService(
	repo repository.DiscountPolicyRepository,
	names repository.ProductNameRepository,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	producer EventProducer,
	notifier ChangeNotifier,
	metrics MetricsRecorder,
	logger *zap.Logger,
) DiscountService {
	return &discountServiceImpl{
		repo:        repo,
		names:       names,
		snsClient:   snsClient,
		snsTopicArn: snsTopicArn,
		producer:    producer,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
	}
}

// GetDiscounts returns the store's policy, creating an empty one on first access.
func (s *discountServiceImpl) GetDiscounts(ctx context.Context, storeID string) (*models.DiscountPolicy, *ServiceError) {
	if storeID == "" {
		return nil, &ServiceError{StatusCode: 400, Message: "store id is required"}
	}
	policy, err := s.repo.FindByStoreID(ctx, storeID)
	if err == nil {
		return policy, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("Failed to load discount policy", zap.String("store_id", storeID), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to load discounts"}
	}

	if err := s.repo.Create(ctx, models.NewDiscountPolicy(storeID)); err != nil {
		s.logger.Error("Failed to create discount policy", zap.String("store_id", storeID), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to create discount policy"}
	}
	policy, err = s.repo.FindByStoreID(ctx, storeID)
	if err != nil {
		s.logger.Error("Failed to reload discount policy", zap.String("store_id", storeID), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to load discounts"}
	}
	s.logger.Info("Discount policy created", zap.String("store_id", storeID))
	return policy, nil
}

// AddDiscount appends a new discount as the last child of req.ParentID.
func (s *discountServiceImpl) AddDiscount(ctx context.Context, storeID string, req *models.CreateDiscountRequest) (*models.DiscountPolicy, models.Discount, *ServiceError) {
	created, serr := buildDiscount(req)
	if serr != nil {
		return nil, nil, serr
	}
	policy, serr := s.mutate(ctx, storeID, models.EventDiscountAdded, created.GetID(), aws_pkg.MetricDiscountsCreated,
		func(root *models.ComplexDiscount) *ServiceError {
			parentID := req.ParentID
			if parentID == "" {
				parentID = root.ID
			}
			parent, serr := findComplex(root, parentID)
			if serr != nil {
				return serr
			}
			parent.Discounts = append(parent.Discounts, created)
			return nil
		})
	if serr != nil {
		return nil, nil, serr
	}
	return policy, created, nil
}

// RemoveDiscount removes a discount and its subtree. The root stays.
func (s *discountServiceImpl) RemoveDiscount(ctx context.Context, storeID, discountID string) (*models.DiscountPolicy, *ServiceError) {
	return s.mutate(ctx, storeID, models.EventDiscountRemoved, discountID, aws_pkg.MetricDiscountsRemoved,
		func(root *models.ComplexDiscount) *ServiceError {
			_, err := models.DetachDiscount(root, discountID)
			return treeError(err)
		})
}

// MoveDiscount re-parents srcID as the last child of destID.
func (s *discountServiceImpl) MoveDiscount(ctx context.Context, storeID, srcID, destID string) (*models.DiscountPolicy, *ServiceError) {
	return s.mutate(ctx, storeID, models.EventDiscountMoved, srcID, aws_pkg.MetricDiscountsMoved,
		func(root *models.ComplexDiscount) *ServiceError {
			src, _ := models.FindDiscount(root, srcID)
			if src == nil {
				return &ServiceError{StatusCode: 404, Message: "Discount not found"}
			}
			dest, serr := findComplex(root, destID)
			if serr != nil {
				return serr
			}
			if models.ContainsDiscount(src, destID) {
				return &ServiceError{StatusCode: 400, Message: "A discount cannot be moved under itself"}
			}
			if _, err := models.DetachDiscount(root, srcID); err != nil {
				return treeError(err)
			}
			dest.Discounts = append(dest.Discounts, src)
			return nil
		})
}

// EditSimpleDiscount updates the fields present in req.
func (s *discountServiceImpl) EditSimpleDiscount(ctx context.Context, storeID, discountID string, req *models.EditSimpleDiscountRequest) (*models.DiscountPolicy, *ServiceError) {
	return s.mutate(ctx, storeID, models.EventDiscountEdited, discountID, aws_pkg.MetricDiscountsEdited,
		func(root *models.ComplexDiscount) *ServiceError {
			found, _ := models.FindDiscount(root, discountID)
			if found == nil {
				return &ServiceError{StatusCode: 404, Message: "Discount not found"}
			}
			d, ok := found.(*models.SimpleDiscount)
			if !ok {
				return &ServiceError{StatusCode: 400, Message: "Discount is not a simple discount"}
			}
			if req.Percentage != nil {
				d.Percentage = *req.Percentage
			}
			if req.Context != nil {
				d.Context = *req.Context
			}
			if req.ClearValidity {
				d.ValidFrom, d.ValidUntil = nil, nil
			}
			if req.ValidFrom != nil {
				from := *req.ValidFrom
				d.ValidFrom = &from
			}
			if req.ValidUntil != nil {
				until := *req.ValidUntil
				d.ValidUntil = &until
			}
			return nil
		})
}

// EditComplexDiscount updates the fields present in req. Changing the type
// away from xor drops the decision rule.
func (s *discountServiceImpl) EditComplexDiscount(ctx context.Context, storeID, discountID string, req *models.EditComplexDiscountRequest) (*models.DiscountPolicy, *ServiceError) {
	return s.mutate(ctx, storeID, models.EventDiscountEdited, discountID, aws_pkg.MetricDiscountsEdited,
		func(root *models.ComplexDiscount) *ServiceError {
			found, _ := models.FindDiscount(root, discountID)
			if found == nil {
				return &ServiceError{StatusCode: 404, Message: "Discount not found"}
			}
			d, ok := found.(*models.ComplexDiscount)
			if !ok {
				return &ServiceError{StatusCode: 400, Message: "Discount is not a complex discount"}
			}
			if req.Type != nil {
				d.Type = *req.Type
				if d.Type != models.ComplexXor {
					d.DecisionRule = nil
				}
			}
			if req.DecisionRule != nil {
				rule := *req.DecisionRule
				d.DecisionRule = &rule
			}
			return nil
		})
}

// SetDiscountCondition replaces the condition of a discount. A nil
// condition removes it.
func (s *discountServiceImpl) SetDiscountCondition(ctx context.Context, storeID, discountID string, cond *models.Condition) (*models.DiscountPolicy, *ServiceError) {
	cond = cond.Clone()
	assignRuleIDs(cond)
	return s.mutate(ctx, storeID, models.EventDiscountConditionChanged, discountID, aws_pkg.MetricDiscountsEdited,
		func(root *models.ComplexDiscount) *ServiceError {
			slot, serr := conditionSlot(root, discountID)
			if serr != nil {
				return serr
			}
			*slot = cond
			return nil
		})
}

// AddConditionRule appends a rule under a composite of the discount's
// condition.
func (s *discountServiceImpl) AddConditionRule(ctx context.Context, storeID, discountID string, req *models.AddConditionRuleRequest) (*models.DiscountPolicy, *ServiceError) {
	if req.Rule == nil {
		return nil, &ServiceError{StatusCode: 400, Message: "rule is required"}
	}
	rule := req.Rule.Clone()
	assignRuleIDs(rule)
	return s.mutate(ctx, storeID, models.EventDiscountConditionChanged, discountID, aws_pkg.MetricDiscountsEdited,
		func(root *models.ComplexDiscount) *ServiceError {
			slot, serr := conditionSlot(root, discountID)
			if serr != nil {
				return serr
			}
			if *slot == nil {
				return &ServiceError{StatusCode: 400, Message: "Discount has no condition to add rules to"}
			}
			parent := *slot
			if req.ParentID != "" {
				if parent, _ = (*slot).FindRule(req.ParentID); parent == nil {
					return &ServiceError{StatusCode: 404, Message: "Condition rule not found"}
				}
			}
			if !parent.IsComposite() {
				return &ServiceError{StatusCode: 400, Message: "Rules can only be added under a composite condition"}
			}
			parent.Rules = append(parent.Rules, rule)
			return nil
		})
}

// RemoveConditionRule drops a rule and its subtree from the discount's
// condition.
func (s *discountServiceImpl) RemoveConditionRule(ctx context.Context, storeID, discountID, ruleID string) (*models.DiscountPolicy, *ServiceError) {
	return s.mutate(ctx, storeID, models.EventDiscountConditionChanged, discountID, aws_pkg.MetricDiscountsEdited,
		func(root *models.ComplexDiscount) *ServiceError {
			slot, serr := conditionSlot(root, discountID)
			if serr != nil {
				return serr
			}
			if *slot == nil {
				return &ServiceError{StatusCode: 404, Message: "Condition rule not found"}
			}
			err := (*slot).RemoveRule(ruleID)
			if errors.Is(err, models.ErrDiscountNotFound) {
				return &ServiceError{StatusCode: 404, Message: "Condition rule not found"}
			}
			return treeError(err)
		})
}

// CalculateDiscount prices a cart against the store's current tree.
func (s *discountServiceImpl) CalculateDiscount(ctx context.Context, storeID string, req *models.CalculateDiscountRequest) (*models.CalculateDiscountResponse, *ServiceError) {
	policy, serr := s.GetDiscounts(ctx, storeID)
	if serr != nil {
		return nil, serr
	}
	for _, item := range req.Items {
		if item.Price < 0 || item.Quantity < 1 {
			return nil, &ServiceError{StatusCode: 400, Message: "Cart items need a non-negative price and a positive quantity"}
		}
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	subtotal, reduction := CalculateReduction(policy.Root.Root, req.Items, at)
	return &models.CalculateDiscountResponse{
		Subtotal:       subtotal,
		DiscountAmount: reduction,
		Total:          roundCents(subtotal - reduction),
	}, nil
}

// ProductNameResolver looks up every product named in root at once. Lookup
// failures are logged and the raw ids are shown instead.
func (s *discountServiceImpl) ProductNameResolver(ctx context.Context, root models.Discount) views.ProductIDToString {
	ids := models.ProductIDs(root)
	if s.names == nil || len(ids) == 0 {
		return views.ResolverWithFallback(nil)
	}
	names, err := s.names.ProductNames(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to resolve product names", zap.Int("count", len(ids)), zap.Error(err))
		return views.ResolverWithFallback(nil)
	}
	return views.ResolverWithFallback(names)
}

// mutate applies change to a copy of the store's tree, validates the result
// and saves it against the version that was read.
func (s *discountServiceImpl) mutate(
	ctx context.Context,
	storeID, eventType, discountID, metric string,
	change func(root *models.ComplexDiscount) *ServiceError,
) (*models.DiscountPolicy, *ServiceError) {
	policy, serr := s.GetDiscounts(ctx, storeID)
	if serr != nil {
		return nil, serr
	}
	expected := policy.Version
	root, ok := models.CloneDiscount(policy.Root.Root).(*models.ComplexDiscount)
	if !ok || root == nil {
		s.logger.Error("Stored discount tree is malformed", zap.String("store_id", storeID))
		return nil, &ServiceError{StatusCode: 500, Message: "Stored discount tree is malformed"}
	}

	if serr := change(root); serr != nil {
		return nil, serr
	}
	if err := models.ValidateTree(root); err != nil {
		return nil, &ServiceError{StatusCode: 400, Message: err.Error()}
	}

	policy.Root = models.DiscountTree{Root: root}
	if err := s.repo.Save(ctx, policy, expected); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.count(ctx, aws_pkg.MetricPolicyConflicts, storeID)
			return nil, &ServiceError{StatusCode: 409, Message: "Discounts were changed by someone else, reload and retry"}
		}
		s.logger.Error("Failed to save discount policy", zap.String("store_id", storeID), zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Failed to save discounts"}
	}

	s.logger.Info("Discount policy changed",
		zap.String("store_id", storeID),
		zap.String("event_type", eventType),
		zap.String("discount_id", discountID),
		zap.Int("version", policy.Version),
	)
	s.count(ctx, metric, storeID)
	s.publishPolicyEvent(ctx, models.DiscountPolicyEvent{
		EventType:  eventType,
		StoreID:    storeID,
		DiscountID: discountID,
		Version:    policy.Version,
		Timestamp:  time.Now().UTC(),
	})
	if s.notifier != nil {
		s.notifier.NotifyPolicyChanged(storeID, policy.Version)
	}
	return policy, nil
}

// publishPolicyEvent fans the event out to SNS and Kafka. Failures are
// logged; the change is already committed.
func (s *discountServiceImpl) publishPolicyEvent(ctx context.Context, evt models.DiscountPolicyEvent) {
	if s.snsClient != nil && s.snsTopicArn != "" {
		payload, err := json.Marshal(evt)
		if err != nil {
			s.logger.Error("Failed to marshal discount event", zap.Error(err))
		} else if err := s.snsClient.Publish(ctx, s.snsTopicArn, payload, map[string]string{
			"event_type": evt.EventType,
			"store_id":   evt.StoreID,
		}); err != nil {
			s.logger.Error("Failed to publish discount event to SNS",
				zap.String("store_id", evt.StoreID),
				zap.Error(err),
			)
		}
	}
	if s.producer != nil {
		if err := s.producer.SendDiscountEvent(ctx, evt); err != nil {
			s.logger.Warn("Failed to publish discount event to Kafka", zap.String("store_id", evt.StoreID), zap.Error(err))
		}
	}
}

func (s *discountServiceImpl) count(ctx context.Context, metric, storeID string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.RecordCount(ctx, metric, map[string]string{"Service": "discount-service"}); err != nil {
		s.logger.Debug("Failed to record metric", zap.String("metric", metric), zap.String("store_id", storeID), zap.Error(err))
	}
}

func buildDiscount(req *models.CreateDiscountRequest) (models.Discount, *ServiceError) {
	id := uuid.NewString()
	var d models.Discount
	switch req.Kind {
	case models.KindSimple:
		if req.Percentage == nil || req.Context == nil {
			return nil, &ServiceError{StatusCode: 400, Message: "A simple discount needs a percentage and a context"}
		}
		sd := &models.SimpleDiscount{
			ID:         id,
			Percentage: *req.Percentage,
			Context:    *req.Context,
			ValidFrom:  req.ValidFrom,
			ValidUntil: req.ValidUntil,
			Condition:  newCondition(req),
		}
		if err := sd.Validate(); err != nil {
			return nil, &ServiceError{StatusCode: 400, Message: err.Error()}
		}
		d = sd
	case models.KindComplex:
		if req.ValidFrom != nil || req.ValidUntil != nil {
			return nil, &ServiceError{StatusCode: 400, Message: "Only simple discounts have a validity window"}
		}
		cd := &models.ComplexDiscount{ID: id, Type: req.Type, Discounts: []models.Discount{}, Condition: newCondition(req)}
		if req.DecisionRule != nil {
			rule := *req.DecisionRule
			cd.DecisionRule = &rule
		}
		if err := cd.Validate(); err != nil {
			return nil, &ServiceError{StatusCode: 400, Message: err.Error()}
		}
		d = cd
	default:
		return nil, &ServiceError{StatusCode: 400, Message: "kind must be simple or complex"}
	}
	return d, nil
}

// newCondition builds the initial condition of a created discount.
func newCondition(req *models.CreateDiscountRequest) *models.Condition {
	if req.Condition != nil {
		cond := req.Condition.Clone()
		assignRuleIDs(cond)
		return cond
	}
	if req.ConditionType != "" {
		return &models.Condition{ID: uuid.NewString(), Clause: req.ConditionType, Rules: []*models.Condition{}}
	}
	return nil
}

func assignRuleIDs(cond *models.Condition) {
	cond.Walk(func(c *models.Condition) {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
	})
}

// conditionSlot returns the condition field of the discount with id.
func conditionSlot(root *models.ComplexDiscount, id string) (**models.Condition, *ServiceError) {
	found, _ := models.FindDiscount(root, id)
	switch d := found.(type) {
	case *models.SimpleDiscount:
		return &d.Condition, nil
	case *models.ComplexDiscount:
		return &d.Condition, nil
	}
	return nil, &ServiceError{StatusCode: 404, Message: "Discount not found"}
}

func findComplex(root *models.ComplexDiscount, id string) (*models.ComplexDiscount, *ServiceError) {
	found, _ := models.FindDiscount(root, id)
	if found == nil {
		return nil, &ServiceError{StatusCode: 404, Message: "Discount not found"}
	}
	c, ok := found.(*models.ComplexDiscount)
	if !ok {
		return nil, &ServiceError{StatusCode: 400, Message: "Discounts can only be added under a complex discount"}
	}
	return c, nil
}

func treeError(err error) *ServiceError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrDiscountNotFound):
		return &ServiceError{StatusCode: 404, Message: "Discount not found"}
	default:
		return &ServiceError{StatusCode: 400, Message: err.Error()}
	}
}
