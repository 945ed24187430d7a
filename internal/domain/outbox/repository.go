package outbox

import "context"

// Repository appends domain events for the relay to deliver
type Repository interface {
	Create(ctx context.Context, event *Event) error
}

// ErrEventNotFound indicates missing outbox event
type ErrEventNotFound struct {
	ID int64
}

func (e ErrEventNotFound) Error() string {
	return "outbox event not found"
}

// Is implements the errors.Is interface for ErrEventNotFound
func (e ErrEventNotFound) Is(target error) bool {
	t, ok := target.(ErrEventNotFound)
	if !ok {
		return false
	}
	if t.ID == 0 {
		return true
	}
	return e.ID == t.ID
}
