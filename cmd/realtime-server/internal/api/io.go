package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/realtime/model"
)

// ConnectSessionRequest registers a live session.
type ConnectSessionRequest struct {
	ID          string   `json:"id,omitempty"`
	Username    string   `json:"username,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Token       string   `json:"token,omitempty"`
	IsToken     bool     `json:"isToken,omitempty"`
	TokenTTL    string   `json:"tokenTtl,omitempty"` // duration string, e.g. "30m"
	Protocol    string   `json:"protocol,omitempty"`
	ClusterName string   `json:"clusterName,omitempty"`
}

// Validate implements request validation.
func (r ConnectSessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TokenTTL, validation.By(optionalDuration)),
	)
}

// RecipientInput identifies one delivery target of a publish request.
type RecipientInput struct {
	SessionID   string `json:"sessionId"`
	ClusterName string `json:"clusterName,omitempty"`
	Merge       bool   `json:"merge,omitempty"`
	Depth       int    `json:"depth,omitempty"`
}

// Validate implements request validation.
func (r RecipientInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionID, validation.Required),
	)
}

// PublishRequest publishes a data event to a set of recipient sessions.
type PublishRequest struct {
	SessionID      string           `json:"sessionId"`
	Path           string           `json:"path"`
	Action         string           `json:"action,omitempty"`
	EventID        int64            `json:"eventId"`
	Data           any              `json:"data,omitempty"`
	Consistency    *int             `json:"consistency,omitempty"`
	PublishResults bool             `json:"publishResults,omitempty"`
	NoCluster      bool             `json:"noCluster,omitempty"`
	Meta           map[string]any   `json:"meta,omitempty"`
	Recipients     []RecipientInput `json:"recipients"`
}

// Validate implements request validation.
func (r PublishRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionID, validation.Required),
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Consistency, validation.By(optionalConsistency)),
		validation.Field(&r.Recipients),
	)
}

// AcknowledgeRequest confirms receipt of one publication by one session.
type AcknowledgeRequest struct {
	SessionID     string `json:"sessionId"`
	PublicationID string `json:"publicationId"`
}

// Validate implements request validation.
func (r AcknowledgeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionID, validation.Required),
		validation.Field(&r.PublicationID, validation.Required),
	)
}

// SecurityChangeRequest submits one security-directory change.
type SecurityChangeRequest struct {
	Kind        string   `json:"kind"`
	Token       string   `json:"token,omitempty"`
	SessionID   string   `json:"sessionId,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	TTL         string   `json:"ttl,omitempty"` // duration string, e.g. "1h"
	Username    string   `json:"username,omitempty"`
	Path        string   `json:"path,omitempty"`
	GroupName   string   `json:"groupName,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Replicated  bool     `json:"replicated,omitempty"`
}

// Validate implements request validation.
func (r SecurityChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required),
		validation.Field(&r.TTL, validation.By(optionalDuration)),
	)
}

// RevokeTokenRequest revokes the token of a live session.
type RevokeTokenRequest struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

// Validate implements request validation.
func (r RevokeTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionID, validation.Required),
	)
}

// RestoreTokenRequest lifts a token revocation.
type RestoreTokenRequest struct {
	Token string `json:"token"`
}

// Validate implements request validation.
func (r RestoreTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// optionalDuration accepts an empty string or a parseable duration.
func optionalDuration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := time.ParseDuration(s)
	return err
}

// optionalConsistency accepts nil or a known consistency level.
func optionalConsistency(value any) error {
	var level int
	switch v := value.(type) {
	case nil:
		return nil
	case *int:
		if v == nil {
			return nil
		}
		level = *v
	case int:
		level = v
	default:
		return validation.NewError("validation_consistency", "must be an integer consistency level")
	}
	if !model.Consistency(level).Valid() {
		return validation.NewError("validation_consistency", "must be a known consistency level")
	}
	return nil
}
