package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// SignalEstimator consulta al servicio de razonamiento externo.
type SignalEstimator interface {
	// Estimate devuelve la probabilidad implícita del outcome positivo.
	// ok=false significa que la respuesta no contenía una probabilidad válida.
	// Un error que cumple errors.Is(err, domain.ErrRateLimited) es un fallo
	// de iteración; cualquier otro error solo descarta el candidato.
	Estimate(ctx context.Context, market domain.Market) (domain.Signal, bool, error)
}
