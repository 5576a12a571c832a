package model

// Outbound message actions.
const (
	// ActionEmit marks a recipient-targeted data delivery.
	ActionEmit = "emit"

	// ActionPublicationAck marks the result envelope returned to the
	// session that requested a guaranteed publish.
	ActionPublicationAck = "publication-ack"
)

// Publication ack statuses.
const (
	AckStatusOK    = "ok"
	AckStatusError = "error"
)

// Outbound is one message addressed to a single session, handed to the
// injected transport for delivery.
type Outbound interface {
	// TargetSession is the session the message must be delivered to.
	TargetSession() *Session
}

// Delivery is the per-recipient outbound message of a publication fan-out.
type Delivery struct {
	Publication *Payload         `json:"publication"`
	Options     RecipientOptions `json:"options"`
	Action      string           `json:"action"`
	Session     *Session         `json:"-"`
}

// TargetSession implements Outbound.
func (d *Delivery) TargetSession() *Session { return d.Session }

// AckMeta is the metadata of a publication ack envelope.
type AckMeta struct {
	Type    string `json:"type"`
	EventID int64  `json:"eventId"`
}

// PublicationAck is the result envelope relayed to the originating session
// once a guaranteed publication completes or times out.
type PublicationAck struct {
	ID      string            `json:"id"`
	Action  string            `json:"action"`
	Result  PublicationResult `json:"result"`
	Status  string            `json:"status"`
	Error   string            `json:"error,omitempty"`
	Meta    AckMeta           `json:"_meta"`
	Session *Session          `json:"-"`
}

// TargetSession implements Outbound.
func (a *PublicationAck) TargetSession() *Session { return a.Session }
