package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coregx/realtime/model"
)

// publisherComponent tags system errors raised by the publisher service.
const publisherComponent = "PublisherService"

// PublicationFactory creates the Publication driving one publish attempt.
// Overridable for testing and for embedding runtimes that decorate
// publications.
type PublicationFactory func(message *model.Message, opts PublicationOptions, transport MessageTransport, logger Logger) (*Publication, error)

// PublishReceipt is the immediate reply handed to a publisher for the
// deferred and acknowledged consistency levels: confirmation that the
// publication was queued, not that it was delivered.
type PublishReceipt struct {
	Publication ReceiptPublication `json:"publication"`
}

// ReceiptPublication carries the queued publication's identifier.
type ReceiptPublication struct {
	ID string `json:"id"`
}

// PublisherStats are lifetime counters for one publisher service.
type PublisherStats struct {
	Attempted      int64 `json:"attempted"`
	Failed         int64 `json:"failed"`
	Unacknowledged int64 `json:"unacknowledged"`
}

// PublisherService creates a Publication per publish request, drives the
// consistency-level completion policy and routes acknowledgements from
// remote sessions into the in-flight publication they belong to.
//
// Thread safety: safe for concurrent use.
type PublisherService struct {
	transport     MessageTransport
	errors        ErrorReporter
	logger        Logger
	notifications NotificationService
	factory       PublicationFactory
	defaults      PublicationOptions

	mu       sync.Mutex
	inflight map[string]*Publication

	attempted      atomic.Int64
	failed         atomic.Int64
	unacknowledged atomic.Int64
}

// PublisherOption configures a PublisherService.
type PublisherOption func(*PublisherService) error

// NewPublisherService creates a new PublisherService with the provided options.
//
// Required options:
//   - WithPublisherTransport: outbound message transport
//   - WithPublisherLogger: logger instance
//
// Optional options:
//   - WithPublicationDefaults: acknowledge timeout and fan-out limit
//   - WithPublisherErrorReporter: system error sink (default: logs)
//   - WithPublisherNotifications: delivery failure notifications
//   - WithPublicationFactory: custom publication construction
func NewPublisherService(opts ...PublisherOption) (*PublisherService, error) {
	s := &PublisherService{
		factory:       NewPublication,
		notifications: &NoOpNotificationService{},
		inflight:      make(map[string]*Publication),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	// Validate required dependencies
	if s.transport == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageTransport is required (use WithPublisherTransport)")
	}
	if s.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}
	if s.errors == nil {
		s.errors = NewLoggingErrorReporter(s.logger)
	}

	return s, nil
}

// WithPublisherTransport sets the outbound message transport.
func WithPublisherTransport(transport MessageTransport) PublisherOption {
	return func(s *PublisherService) error {
		if transport == nil {
			return fmt.Errorf("transport cannot be nil")
		}
		s.transport = transport
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(s *PublisherService) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithPublisherErrorReporter sets the system error sink.
func WithPublisherErrorReporter(reporter ErrorReporter) PublisherOption {
	return func(s *PublisherService) error {
		if reporter == nil {
			return fmt.Errorf("error reporter cannot be nil")
		}
		s.errors = reporter
		return nil
	}
}

// WithPublicationDefaults sets the default publication options applied to
// every publish request.
func WithPublicationDefaults(defaults PublicationOptions) PublisherOption {
	return func(s *PublisherService) error {
		s.defaults = defaults
		return nil
	}
}

// WithPublisherNotifications sets an optional notification service receiving
// callbacks for unacknowledged publications and delivery failures.
func WithPublisherNotifications(service NotificationService) PublisherOption {
	return func(s *PublisherService) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		s.notifications = service
		return nil
	}
}

// WithPublicationFactory overrides how publications are constructed.
func WithPublicationFactory(factory PublicationFactory) PublisherOption {
	return func(s *PublisherService) error {
		if factory == nil {
			return fmt.Errorf("publication factory cannot be nil")
		}
		s.factory = factory
		return nil
	}
}

// ProcessPublish creates a publication for the message and drives it
// according to its consistency level.
//
// Transactional: blocks until fan-out completes and returns pass/fail with
// no receipt. All other levels: returns an immediate queued receipt; the
// publication's own completion, success or unacknowledged-timeout, is
// relayed asynchronously to the originating session as a publication-ack
// envelope. A failure to relay that envelope is reported to the error
// reporter at medium severity.
func (s *PublisherService) ProcessPublish(ctx context.Context, message *model.Message) (*PublishReceipt, error) {
	publication, err := s.factory(message, s.defaults, s.transport, s.logger)
	if err != nil {
		return nil, err
	}
	s.attempted.Add(1)

	if publication.Consistency() == model.ConsistencyTransactional {
		if _, err := publication.Publish(ctx); err != nil {
			s.recordFailure(ctx, publication, err)
			return nil, err
		}
		return nil, nil
	}

	s.register(publication)

	// the publication outlives the request that queued it
	go s.drive(context.WithoutCancel(ctx), publication)

	return &PublishReceipt{Publication: ReceiptPublication{ID: publication.ID()}}, nil
}

// drive runs one queued publication to completion and relays its outcome to
// the originating session.
func (s *PublisherService) drive(ctx context.Context, publication *Publication) {
	defer s.deregister(publication.ID())

	_, err := publication.Publish(ctx)
	if err != nil {
		s.recordFailure(ctx, publication, err)
	}

	results := publication.ResultsMessage(err)
	if sendErr := s.transport.ProcessMessageOut(ctx, results); sendErr != nil {
		s.errors.HandleSystem(sendErr, publisherComponent, SeverityMedium)
	}
}

// ProcessAcknowledge routes a recipient's acknowledgement into the in-flight
// publication named by the request data.
//
// A missing publication is a benign no-op: the acknowledging session is
// always answered with its own message, acknowledging the acknowledgement.
func (s *PublisherService) ProcessAcknowledge(_ context.Context, message *model.Message) *model.Message {
	id, _ := message.Request.Data.(string)

	s.mu.Lock()
	publication := s.inflight[id]
	s.mu.Unlock()

	if publication == nil {
		s.logger.Debugf("acknowledge for unknown publication %q", id)
		return message
	}

	sessionID := message.Request.SessionID
	if sessionID == "" && message.Session != nil {
		sessionID = message.Session.ID
	}
	publication.Acknowledge(sessionID)
	return message
}

// Stats returns the service's lifetime counters.
func (s *PublisherService) Stats() PublisherStats {
	return PublisherStats{
		Attempted:      s.attempted.Load(),
		Failed:         s.failed.Load(),
		Unacknowledged: s.unacknowledged.Load(),
	}
}

// InFlight returns how many publications currently await completion.
func (s *PublisherService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *PublisherService) register(publication *Publication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[publication.ID()] = publication
}

func (s *PublisherService) deregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *PublisherService) recordFailure(ctx context.Context, publication *Publication, err error) {
	result := publication.Result()
	if IsUnacknowledged(err) {
		s.unacknowledged.Add(1)
		if notifyErr := s.notifications.NotifyUnacknowledged(ctx, publication.ID(), result); notifyErr != nil {
			s.logger.Warnf("failed to send unacknowledged notification: %v", notifyErr)
		}
		return
	}
	s.failed.Add(1)
	if notifyErr := s.notifications.NotifyDeliveryFailure(ctx, publication.ID(), result, err); notifyErr != nil {
		s.logger.Warnf("failed to send delivery failure notification: %v", notifyErr)
	}
}
