package ports

import "github.com/alejandrodnm/polyedge/internal/domain"

// EventSink recibe un Event por cada punto de decisión del loop.
// Las implementaciones no deben bloquear: el loop las llama en línea.
type EventSink interface {
	OnEvent(e domain.Event)
}
