// Package reasoning consulta un modelo generativo con búsqueda web (Gemini
// generateContent + google_search) para estimar la probabilidad de un mercado.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const (
	defaultBaseURL      = "https://generativelanguage.googleapis.com"
	defaultModel        = "gemini-2.0-flash"
	defaultTimeout      = 60 * time.Second
	defaultInitialDelay = 3 * time.Second
	defaultMaxAttempts  = 3
	defaultPerMinute    = 15
)

// ErrRateLimited indica que el proveedor siguió limitando tras agotar los
// reintentos. Para el loop es un fallo de iteración, no de candidato.
var ErrRateLimited = domain.ErrRateLimited

// Client implementa ports.SignalEstimator.
type Client struct {
	http         *http.Client
	baseURL      string
	model        string
	apiKey       string
	limiter      *rate.Limiter
	initialDelay time.Duration
	maxAttempts  int
	now          func() time.Time
}

// Option configura un Client.
type Option func(*Client)

// WithBaseURL apunta el cliente a otro endpoint (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel selecciona el modelo.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithBackoff configura el delay inicial y el número máximo de intentos ante rate limit.
func WithBackoff(initial time.Duration, attempts int) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialDelay = initial
		}
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithRequestsPerMinute limita localmente el ritmo de peticiones.
// 0 desactiva el límite.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// WithTimeout cambia el timeout por request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient crea un cliente del servicio de razonamiento.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: defaultTimeout},
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		apiKey:       apiKey,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/defaultPerMinute), 1),
		initialDelay: defaultInitialDelay,
		maxAttempts:  defaultMaxAttempts,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Estimate implementa ports.SignalEstimator.
// Hace una petición por llamada; solo los rate limits se reintentan, con
// backoff exponencial. ok=false si la respuesta no trae una probabilidad válida.
func (c *Client) Estimate(ctx context.Context, market domain.Market) (domain.Signal, bool, error) {
	body := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildPrompt(market, c.now())}},
		}},
		Tools:            []tool{{GoogleSearch: &struct{}{}}},
		GenerationConfig: &generationConfig{Temperature: 0.2},
	}

	resp, err := c.generateWithRetry(ctx, body)
	if err != nil {
		return domain.Signal{}, false, err
	}

	text := resp.text()
	est, ok := parseEstimate(text)
	if !ok {
		slog.Debug("reasoning response without probability",
			"market", domain.ShortID(market.ID),
			"response", truncate(text, 200),
		)
		return domain.Signal{}, false, nil
	}

	return domain.Signal{
		MarketID:           market.ID,
		ImpliedProbability: est.Probability,
		Confidence:         est.Confidence,
		Reasoning:          est.Reasoning,
		Sources:            resp.sources(),
		At:                 c.now(),
	}, true, nil
}

// generateWithRetry reintenta solo ante rate limit: delay inicial, doblando
// en cada intento, hasta maxAttempts. Cualquier otro fallo vuelve en el acto.
func (c *Client) generateWithRetry(ctx context.Context, body generateRequest) (generateResponse, error) {
	delay := c.initialDelay
	for attempt := 1; ; attempt++ {
		resp, err := c.generate(ctx, body)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, errRateLimitedOnce) {
			return generateResponse{}, fmt.Errorf("reasoning.Estimate: %w", err)
		}
		if attempt >= c.maxAttempts {
			return generateResponse{}, fmt.Errorf("reasoning.Estimate: %d attempts: %w", attempt, ErrRateLimited)
		}

		slog.Warn("reasoning service rate limited, backing off",
			"attempt", attempt,
			"delay", delay,
		)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return generateResponse{}, ctx.Err()
		}
		delay *= 2
	}
}

var errRateLimitedOnce = errors.New("rate limited")

// generate hace una única llamada a generateContent.
func (c *Client) generate(ctx context.Context, body generateRequest) (generateResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return generateResponse{}, fmt.Errorf("rate limiter: %w", err)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return generateResponse{}, fmt.Errorf("marshal: %w", err)
	}
	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return generateResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return generateResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return generateResponse{}, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return generateResponse{}, errRateLimitedOnce
	}
	if resp.StatusCode >= 400 {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error.Status == "RESOURCE_EXHAUSTED" {
			return generateResponse{}, errRateLimitedOnce
		}
		return generateResponse{}, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return generateResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func buildPrompt(m domain.Market, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("You are a calibrated forecaster for prediction markets. ")
	sb.WriteString("Search for the latest relevant information and estimate the probability that the following market resolves to \"")
	outcome := m.YesOutcome
	if outcome == "" {
		outcome = "Yes"
	}
	sb.WriteString(outcome)
	sb.WriteString("\".\n\n")
	fmt.Fprintf(&sb, "Question: %s\n", m.Question)
	if m.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", m.Category)
	}
	if !m.EndDate.IsZero() {
		fmt.Fprintf(&sb, "Resolution date: %s\n", m.EndDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&sb, "Current market price: %.3f\n", m.Price)
	fmt.Fprintf(&sb, "Today: %s\n\n", now.UTC().Format("2006-01-02"))
	sb.WriteString("Answer with a JSON object only: ")
	sb.WriteString(`{"probability": <0..1>, "confidence": <0..1>, "reasoning": "<one paragraph>"}`)
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
