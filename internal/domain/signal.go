package domain

import (
	"errors"
	"time"
)

// Signal es la estimación del servicio de razonamiento para un mercado.
// Se produce una vez por mercado e iteración; nunca se cachea.
type Signal struct {
	MarketID           string
	ImpliedProbability float64 // 0..1
	Confidence         float64 // 0..1
	Reasoning          string
	Sources            []string // provenance (URIs de grounding)
	At                 time.Time
}

// ErrRateLimited indica que el servicio de razonamiento siguió limitando tras
// agotar los reintentos. Es un fallo de iteración: el loop aplica backoff.
var ErrRateLimited = errors.New("reasoning service rate limited")
