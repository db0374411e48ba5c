package routing

// Reason is the outcome recorded when a routing attempt does not succeed.
// Reasons are expected results of the simulated environment, carried on
// probes and responses; they implement error so callers can use errors.Is.
type Reason string

const (
	ReasonNone Reason = ""
	// ReasonIsolated: the deciding node had no neighbours.
	ReasonIsolated Reason = "isolated"
	// ReasonFull: the destination buffer was saturated.
	ReasonFull Reason = "full"
	// ReasonDuplicate: the destination already held the same key/item pair.
	ReasonDuplicate Reason = "duplicate"
	// ReasonLost: the reply exceeded its hop budget.
	ReasonLost Reason = "lost"
	// ReasonMissing: a GET reached its local minimum and the key was absent.
	ReasonMissing Reason = "missing"
)

// Sentinel errors for errors.Is comparisons
var (
	ErrIsolated  error = ReasonIsolated
	ErrFull      error = ReasonFull
	ErrDuplicate error = ReasonDuplicate
	ErrLost      error = ReasonLost
	ErrMissing   error = ReasonMissing
)

func (r Reason) Error() string { return string(r) }

func (r Reason) String() string {
	if r == ReasonNone {
		return "none"
	}
	return string(r)
}

// Retryable reports whether a PUT failing for this reason may be retried.
// Only storage conflicts at the destination are.
func (r Reason) Retryable() bool {
	return r == ReasonFull || r == ReasonDuplicate
}
