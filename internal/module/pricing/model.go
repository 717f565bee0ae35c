// Package pricing provides the static pricing registry and cost estimator.
// Pricing is loaded once at startup and immutable afterwards, so concurrent
// reads need no locking.
package pricing

// Unit represents how a model is billed.
type Unit string

const (
	UnitPerItem     Unit = "per_item"
	UnitPerDuration Unit = "per_duration"
)

// Entry holds pricing for a single model identifier.
type Entry struct {
	ModelID            string
	Unit               Unit
	UnitPrice          float64
	AvgDurationSeconds float64
}

// Estimate is the value object produced for one generation request. The same
// estimate drives both the approval gate and the ledger entry so the two
// amounts can never diverge.
type Estimate struct {
	ModelID  string         `json:"model_id"`
	Amount   float64        `json:"amount"`
	Currency string         `json:"currency"`
	Unit     Unit           `json:"unit"`
	Factors  map[string]any `json:"factors,omitempty"`
}
