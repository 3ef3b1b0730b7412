package notify

import (
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// Multi reparte cada evento entre varios sinks, en orden.
type Multi []ports.EventSink

// NewMulti construye un Multi ignorando sinks nil.
func NewMulti(sinks ...ports.EventSink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// OnEvent implementa ports.EventSink.
func (m Multi) OnEvent(e domain.Event) {
	for _, s := range m {
		s.OnEvent(e)
	}
}
