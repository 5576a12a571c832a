package realtime

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coregx/realtime/model"
)

// Default publication option values.
const (
	// DefaultAcknowledgeTimeout bounds how long an acknowledged publication
	// waits for recipient confirmations.
	DefaultAcknowledgeTimeout = 60 * time.Second

	// DefaultFanoutLimit bounds how many recipient deliveries may be in
	// flight concurrently within one publication.
	DefaultFanoutLimit = 100
)

// PublicationOptions configure the completion policy of publish attempts.
type PublicationOptions struct {
	// AcknowledgeTimeout is how long an acknowledged publication waits for
	// every recipient to confirm receipt before finalizing with
	// ErrUnacknowledged. Defaults to DefaultAcknowledgeTimeout.
	AcknowledgeTimeout time.Duration

	// FanoutLimit caps concurrent in-flight recipient deliveries.
	// Defaults to DefaultFanoutLimit.
	FanoutLimit int
}

func (o PublicationOptions) withDefaults() PublicationOptions {
	if o.AcknowledgeTimeout <= 0 {
		o.AcknowledgeTimeout = DefaultAcknowledgeTimeout
	}
	if o.FanoutLimit <= 0 {
		o.FanoutLimit = DefaultFanoutLimit
	}
	return o
}

// Publication owns one publish attempt's lifecycle: payload construction,
// recipient fan-out with bounded concurrency, per-recipient result
// bookkeeping, acknowledgement tracking and timeout handling.
//
// A Publication is constructed per publish call and garbage once Publish
// returns. Completion is exactly-once: the first of all-acknowledged,
// acknowledge-timeout or hard dispatch error wins, and an acknowledgement
// arriving after completion is a safe no-op.
//
// Thread safety: Publish must be called once; Acknowledge may be called
// concurrently from any goroutine, before, during or after Publish.
type Publication struct {
	id             string
	message        *model.Message
	options        PublicationOptions
	consistency    model.Consistency
	publishResults bool
	noCluster      bool
	payload        *model.Payload
	recipients     []model.Recipient
	transport      MessageTransport
	logger         Logger

	mu         sync.Mutex
	result     model.PublicationResult
	unacked    map[string]int
	preacked   map[string]int
	duplicates map[string]bool
	dispatched bool
	completed  bool
	ackDrained chan struct{}
}

// NewPublication creates a publication for one publish attempt.
//
// The publication's consistency level and publish-results flag come from
// the message request options; opts supply the acknowledge timeout and
// fan-out limit. Acknowledged consistency always publishes results.
func NewPublication(message *model.Message, opts PublicationOptions, transport MessageTransport, logger Logger) (*Publication, error) {
	if message == nil {
		return nil, NewError(ErrCodeValidation, "message is required")
	}
	if transport == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageTransport is required")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}

	consistency := message.Request.Options.ResolveConsistency()
	publishResults := consistency == model.ConsistencyAcknowledged
	noCluster := false
	if reqOpts := message.Request.Options; reqOpts != nil {
		publishResults = publishResults || reqOpts.PublishResults
		noCluster = reqOpts.NoCluster
	}

	p := &Publication{
		id:             message.PublicationID(),
		message:        message,
		options:        opts.withDefaults(),
		consistency:    consistency,
		publishResults: publishResults,
		noCluster:      noCluster,
		payload:        buildPayload(message, consistency),
		recipients:     message.Recipients,
		transport:      transport,
		logger:         logger,
		unacked:        make(map[string]int),
		preacked:       make(map[string]int),
		duplicates:     make(map[string]bool),
		ackDrained:     make(chan struct{}),
	}
	p.result.Queued = len(p.recipients)
	return p, nil
}

// buildPayload clones the response body into the outbound payload, stamping
// the engine-owned meta fields and folding in caller meta.
func buildPayload(m *model.Message, consistency model.Consistency) *model.Payload {
	var sessionID string
	if m.Session != nil {
		sessionID = m.Session.ID
	}

	meta := model.PayloadMeta{
		Path:          m.Request.Path,
		Action:        model.FormatAction(m.Request.Action, m.Request.Path),
		Type:          model.PayloadTypeData,
		SessionID:     sessionID,
		PublicationID: m.PublicationID(),
		Consistency:   consistency,
		Created:       m.Response.Meta.Created,
		Modified:      m.Response.Meta.Modified,
	}
	if m.Session != nil && m.Session.User != nil {
		meta.EventOrigin = &model.EventOrigin{
			ID:       m.Session.ID,
			Username: m.Session.User.Username,
		}
	}
	if m.Request.Options != nil {
		meta.MergeCustomMeta(m.Request.Options.Meta)
	}

	return &model.Payload{
		Data:     m.Response.Data,
		Protocol: m.Protocol,
		Meta:     meta,
		Outbound: true,
	}
}

// ID returns the publication identifier "{sessionID}-{eventID}".
func (p *Publication) ID() string { return p.id }

// Consistency returns the publication's resolved consistency level.
func (p *Publication) Consistency() model.Consistency { return p.consistency }

// Result returns a snapshot of the current delivery bookkeeping.
func (p *Publication) Result() model.PublicationResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Outstanding returns how many recipient sessions still owe an
// acknowledgement.
func (p *Publication) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	outstanding := 0
	for _, n := range p.unacked {
		outstanding += n
	}
	return outstanding
}

// Publish fans the payload out to every recipient and drives the
// consistency-level completion policy.
//
// Recipients sharing a logical channel are dispatched once: the first
// occurrence in recipient order wins, later ones count as skipped.
// Delivery errors are recorded per recipient and never abort the fan-out;
// a context cancellation is a hard dispatch error and aborts immediately.
//
// For acknowledged consistency, Publish then waits until every recipient
// acknowledged or the acknowledge timeout elapsed, returning
// ErrUnacknowledged with the result snapshot in the latter case. All other
// levels finalize as soon as fan-out completes.
func (p *Publication) Publish(ctx context.Context) (model.PublicationResult, error) {
	if len(p.recipients) > 0 {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(p.options.FanoutLimit)

		for _, recipient := range p.recipients {
			if p.skip(recipient) {
				continue
			}
			delivery := p.deliveryFor(recipient)
			sessionID := recipient.SessionID
			group.Go(func() error {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				err := p.transport.ProcessMessageOut(groupCtx, delivery)
				p.recordDispatch(sessionID, err)
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			return p.complete(NewErrorWithCause(ErrCodeDelivery, "publication fan-out aborted", err))
		}
	}

	p.mu.Lock()
	p.dispatched = true
	if p.consistency != model.ConsistencyAcknowledged {
		p.mu.Unlock()
		return p.complete(nil)
	}
	// acknowledgements may have arrived while dispatch was still running
	if p.result.Queued > 0 && len(p.unacked) == 0 {
		p.mu.Unlock()
		return p.complete(nil)
	}
	drained := p.ackDrained
	p.mu.Unlock()

	timer := time.NewTimer(p.options.AcknowledgeTimeout)
	defer timer.Stop()

	select {
	case <-drained:
		return p.complete(nil)
	case <-timer.C:
		return p.complete(ErrUnacknowledged)
	case <-ctx.Done():
		return p.complete(NewErrorWithCause(ErrCodeDelivery, "publication cancelled", ctx.Err()))
	}
}

// skip applies duplicate-channel and no-cluster suppression, counting the
// recipient as skipped when it must not be dispatched. Evaluated in
// recipient order so the first occurrence of a channel wins.
func (p *Publication) skip(recipient model.Recipient) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.noCluster && recipient.ClusterName != "" {
		p.result.Skipped++
		return true
	}
	key := p.channelKey(recipient)
	if p.duplicates[key] {
		p.result.Skipped++
		return true
	}
	p.duplicates[key] = true
	return false
}

// channelKey derives the recipient's logical channel, defaulting the action
// and path from the originating request when the recipient carries none.
func (p *Publication) channelKey(recipient model.Recipient) string {
	if recipient.Action == "" {
		recipient.Action = p.message.Request.Action
	}
	if recipient.Path == "" {
		recipient.Path = p.message.Request.Path
	}
	return recipient.ChannelKey()
}

// deliveryFor builds the per-recipient outbound message embedding the shared
// payload and the recipient's own delivery options.
func (p *Publication) deliveryFor(recipient model.Recipient) *model.Delivery {
	session := recipient.Session
	if session == nil {
		session = &model.Session{ID: recipient.SessionID}
	}
	return &model.Delivery{
		Publication: p.payload,
		Options:     recipient.Options,
		Action:      model.ActionEmit,
		Session:     session,
	}
}

// recordDispatch books one recipient's send outcome. For acknowledged
// consistency the recipient joins the outstanding set unless its
// acknowledgement already arrived before the send completed.
func (p *Publication) recordDispatch(sessionID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracksAcks := p.consistency == model.ConsistencyAcknowledged

	if err != nil {
		p.result.Failed++
		p.result.LastError = err.Error()
		p.logger.Warnf("publication %s: delivery to session %s failed: %v", p.id, sessionID, err)
		if tracksAcks {
			p.unacked[sessionID]++
		}
		return
	}

	p.result.Successful++
	if !tracksAcks {
		return
	}
	if p.preacked[sessionID] > 0 {
		p.preacked[sessionID]--
		if p.preacked[sessionID] == 0 {
			delete(p.preacked, sessionID)
		}
		p.result.Acknowledged++
		return
	}
	p.unacked[sessionID]++
}

// Acknowledge records a receipt confirmation from a recipient session.
//
// Matching outstanding entries are removed and counted; an acknowledgement
// for a session not yet registered by the fan-out is remembered so the
// dispatch bookkeeping can reconcile it (acknowledgements may overtake the
// send callback). After completion, or for an unknown session once dispatch
// finished, the call is a no-op.
func (p *Publication) Acknowledge(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.completed {
		return
	}
	if n, ok := p.unacked[sessionID]; ok {
		delete(p.unacked, sessionID)
		p.result.Acknowledged += n
		if p.dispatched && len(p.unacked) == 0 {
			close(p.ackDrained)
		}
		return
	}
	if !p.dispatched {
		p.preacked[sessionID]++
	}
}

// complete seals the publication outcome. The first caller wins; later
// calls return the sealed snapshot unchanged.
func (p *Publication) complete(err error) (model.PublicationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := p.result
	if p.completed {
		return snapshot, err
	}
	p.completed = true

	if p.publishResults {
		results := snapshot
		p.message.Response.Meta.PublishResults = &results
	}
	return snapshot, err
}

// ResultsMessage produces the publication-ack envelope returned to the
// session that requested a guaranteed publish.
func (p *Publication) ResultsMessage(err error) *model.PublicationAck {
	ack := &model.PublicationAck{
		ID:     p.id,
		Action: model.ActionPublicationAck,
		Result: p.Result(),
		Status: model.AckStatusOK,
		Meta: model.AckMeta{
			Type:    "ack",
			EventID: p.message.Request.EventID,
		},
		Session: p.message.Session,
	}
	if err != nil {
		ack.Status = model.AckStatusError
		ack.Error = err.Error()
	}
	return ack
}
