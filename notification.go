package realtime

import (
	"context"

	"github.com/coregx/realtime/model"
)

// NotificationService defines an optional interface for surfacing
// publication delivery problems to alerting systems (email, chat,
// monitoring).
type NotificationService interface {
	// NotifyUnacknowledged is called when an acknowledged publication times
	// out with recipients still owing confirmation. The result snapshot
	// carries the partial counts.
	NotifyUnacknowledged(ctx context.Context, publicationID string, result model.PublicationResult) error

	// NotifyDeliveryFailure is called when a publication fails outright.
	NotifyDeliveryFailure(ctx context.Context, publicationID string, result model.PublicationResult, err error) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when notifications are not needed.
type NoOpNotificationService struct{}

// NotifyUnacknowledged does nothing.
func (n *NoOpNotificationService) NotifyUnacknowledged(_ context.Context, _ string, _ model.PublicationResult) error {
	return nil
}

// NotifyDeliveryFailure does nothing.
func (n *NoOpNotificationService) NotifyDeliveryFailure(_ context.Context, _ string, _ model.PublicationResult, _ error) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs
// notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyUnacknowledged logs the timed-out publication with its partial counts.
func (n *LoggingNotificationService) NotifyUnacknowledged(_ context.Context, publicationID string, result model.PublicationResult) error {
	n.logger.Warnf("publication unacknowledged: id=%s, queued=%d, acknowledged=%d, failed=%d",
		publicationID, result.Queued, result.Acknowledged, result.Failed)
	return nil
}

// NotifyDeliveryFailure logs the failed publication.
func (n *LoggingNotificationService) NotifyDeliveryFailure(_ context.Context, publicationID string, result model.PublicationResult, err error) error {
	n.logger.Errorf("publication failed: id=%s, successful=%d, failed=%d, error=%v",
		publicationID, result.Successful, result.Failed, err)
	return nil
}
