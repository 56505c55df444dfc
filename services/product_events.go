package services

import (
	"context"
	"encoding/json"

	"discount-service/models"
	aws_pkg "discount-service/pkg/aws"

	"go.uber.org/zap"
)

// NameEvicter drops cached product names.
type NameEvicter interface {
	Evict(ctx context.Context, productID string) error
}

// snsEnvelope unwraps the SNS → SQS message wrapper
type snsEnvelope struct {
	Message string `json:"Message"`
}

// NewProductEventHandler returns an SQS handler that evicts cached names on
// product_updated and product_deleted. Unparseable messages are dropped;
// eviction failures are left on the queue for redelivery.
func NewProductEventHandler(evicter NameEvicter, metrics MetricsRecorder, logger *zap.Logger) aws_pkg.MessageHandler {
	return func(ctx context.Context, body string) error {
		payload := []byte(body)
		var envelope snsEnvelope
		if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Message != "" {
			payload = []byte(envelope.Message)
		}

		var evt models.ProductEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			logger.Error("failed to unmarshal product event", zap.Error(err))
			return nil
		}

		switch evt.EventType {
		case "product_updated", "product_deleted":
		default:
			logger.Debug("ignoring product event", zap.String("event_type", evt.EventType))
			return nil
		}
		if evt.ProductID == "" {
			logger.Warn("product event without product id", zap.String("event_type", evt.EventType))
			return nil
		}

		if err := evicter.Evict(ctx, evt.ProductID); err != nil {
			logger.Error("failed to evict product name",
				zap.String("product_id", evt.ProductID),
				zap.Error(err),
			)
			return err
		}
		if metrics != nil {
			_ = metrics.RecordCount(ctx, aws_pkg.MetricSQSMessages, map[string]string{"Service": "discount-service"})
		}
		logger.Info("product name evicted", zap.String("product_id", evt.ProductID), zap.String("event_type", evt.EventType))
		return nil
	}
}
