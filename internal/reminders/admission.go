package reminders

import "fmt"

// DefaultMaxSchedules is used when no limit is configured.
const DefaultMaxSchedules = 50

// Admission caps the number of live reminders per chat.
type Admission struct {
	Max int
}

// Admit reports ErrCapacityExceeded when existing plus the candidates already
// admitted from the same message would reach the limit.
func (a Admission) Admit(existing, pendingInBatch int) error {
	limit := a.Max
	if limit <= 0 {
		limit = DefaultMaxSchedules
	}
	if existing+pendingInBatch >= limit {
		return fmt.Errorf("%w: %d of %d in use", ErrCapacityExceeded, existing+pendingInBatch, limit)
	}
	return nil
}
