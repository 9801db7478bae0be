package ports

import "github.com/fasanicam/ferme-dashboard/internal/domain"

// Broadcaster pushes change events to live subscribers. Emit must not block.
type Broadcaster interface {
	Emit(kind domain.EventKind, payload any)
}
