package model

// PublicationResult holds the per-recipient delivery bookkeeping of one
// publish attempt. Counters are monotonically non-decreasing within one
// publication lifecycle; Acknowledged converges toward Queued while a
// publication awaits acknowledgements.
//
// Acknowledged is only meaningful for ConsistencyAcknowledged publications.
type PublicationResult struct {
	Successful   int    `json:"successful"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Queued       int    `json:"queued"`
	Acknowledged int    `json:"acknowledged"`
	LastError    string `json:"lastError,omitempty"`
}

// Completed returns the number of recipients the publication has fully
// processed, whether delivered, failed or suppressed as duplicates.
func (r PublicationResult) Completed() int {
	return r.Successful + r.Failed + r.Skipped
}
