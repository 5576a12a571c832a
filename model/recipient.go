package model

import "fmt"

// RecipientOptions carry per-recipient delivery options resolved from the
// recipient's subscription.
type RecipientOptions struct {
	// Merge delivers only the changed fields instead of the full document.
	Merge bool `json:"merge,omitempty"`

	// Depth limits how deep below the subscribed path changes are delivered.
	Depth int `json:"depth,omitempty"`

	// NoCluster excludes the recipient from cluster-replicated deliveries.
	NoCluster bool `json:"noCluster,omitempty"`
}

// Recipient identifies one live session targeted to receive a publication.
type Recipient struct {
	SessionID   string
	Session     *Session
	ClusterName string
	Path        string
	Action      string
	Options     RecipientOptions
}

// ChannelKey derives the logical channel this recipient listens on:
// "{sessionID}/{action}@{path}". Within one publication only the first
// recipient per channel is dispatched.
func (r Recipient) ChannelKey() string {
	return fmt.Sprintf("%s/%s@%s", r.SessionID, r.Action, r.Path)
}
