package types

// Event is the generic payload handed to subscribers and indexers after a
// ledger operation commits.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
