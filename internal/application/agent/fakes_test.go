package agent

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

type fakeMarkets struct {
	markets []domain.Market
	filters []domain.MarketFilter
}

func (f *fakeMarkets) ListTradableMarkets(_ context.Context, filter domain.MarketFilter) ([]domain.Market, domain.ScanStats) {
	f.filters = append(f.filters, filter)
	return f.markets, domain.ScanStats{Total: len(f.markets) + 2, Tradable: len(f.markets), Discarded: 2}
}

type fakeBooks struct {
	books map[string]domain.OrderBook
}

func (f *fakeBooks) GetOrderbook(_ context.Context, tokenID string) (domain.OrderBook, bool) {
	b, ok := f.books[tokenID]
	return b, ok
}

type estimate struct {
	sig domain.Signal
	ok  bool
	err error
}

type fakeEstimator struct {
	byMarket map[string]estimate
	calls    map[string]int
}

func newFakeEstimator() *fakeEstimator {
	return &fakeEstimator{byMarket: map[string]estimate{}, calls: map[string]int{}}
}

func (f *fakeEstimator) set(id string, prob, conf float64) {
	f.byMarket[id] = estimate{sig: domain.Signal{MarketID: id, ImpliedProbability: prob, Confidence: conf}, ok: true}
}

func (f *fakeEstimator) Estimate(_ context.Context, m domain.Market) (domain.Signal, bool, error) {
	f.calls[m.ID]++
	e := f.byMarket[m.ID]
	return e.sig, e.ok, e.err
}

type fakeExecutor struct {
	reject map[string]bool
	err    error
	reqs   []domain.ExecutionRequest
}

func (f *fakeExecutor) Execute(_ context.Context, req domain.ExecutionRequest) (domain.Trade, bool, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return domain.Trade{}, false, f.err
	}
	if f.reject[req.Market.ID] {
		return domain.Trade{}, false, nil
	}
	price := req.Book.MidPrice()
	return domain.Trade{
		ID:         "t-" + req.Market.ID,
		MarketID:   req.Market.ID,
		Side:       req.Side,
		EntryPrice: price,
		Size:       req.Size,
		Shares:     req.Size / price,
		Status:     domain.TradeOpen,
		Simulated:  true,
		CreatedAt:  time.Now(),
	}, true, nil
}

type fakeBalances struct {
	bal domain.Balances
	err error
}

func (f *fakeBalances) Balances(context.Context) (domain.Balances, error) { return f.bal, f.err }

type fakeJournal struct {
	trades []domain.Trade
	runs   []domain.RunSummary
}

func (f *fakeJournal) SaveTrade(_ context.Context, t domain.Trade) error {
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeJournal) SaveRun(_ context.Context, s domain.RunSummary) error {
	f.runs = append(f.runs, s)
	return nil
}

func (f *fakeJournal) GetTrades(context.Context, time.Time, time.Time) ([]domain.Trade, error) {
	return f.trades, nil
}

func (f *fakeJournal) GetRuns(context.Context, int) ([]domain.RunSummary, error) { return f.runs, nil }

func (f *fakeJournal) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) OnEvent(e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) kinds(kind domain.EventKind) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// --- builders ---

func market(id string) domain.Market {
	return domain.Market{
		ID:               id,
		Question:         "Question " + id + "?",
		YesTokenID:       "yes-" + id,
		YesOutcome:       "Yes",
		Active:           true,
		AcceptingOrders:  true,
		OrderBookEnabled: true,
	}
}

// tightBook: mid 0.40, spread 0.025, ~405 USDC de profundidad.
func tightBook(token string) domain.OrderBook {
	return domain.OrderBook{
		TokenID: token,
		Bids:    []domain.BookEntry{{Price: 0.395, Size: 1000}},
		Asks:    []domain.BookEntry{{Price: 0.405, Size: 1000}},
	}
}

type harness struct {
	markets   *fakeMarkets
	books     *fakeBooks
	estimator *fakeEstimator
	executor  *fakeExecutor
	journal   *fakeJournal
	sink      *recordingSink
	waits     []time.Duration
}

func newHarness(ids ...string) *harness {
	h := &harness{
		markets:   &fakeMarkets{},
		books:     &fakeBooks{books: map[string]domain.OrderBook{}},
		estimator: newFakeEstimator(),
		executor:  &fakeExecutor{reject: map[string]bool{}},
		journal:   &fakeJournal{},
		sink:      &recordingSink{},
	}
	for _, id := range ids {
		m := market(id)
		h.markets.markets = append(h.markets.markets, m)
		h.books.books[m.YesTokenID] = tightBook(m.YesTokenID)
		h.estimator.set(id, 0.60, 0.80)
	}
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Markets:   h.markets,
		Books:     h.books,
		Estimator: h.estimator,
		Executor:  h.executor,
		Journal:   h.journal,
		Sink:      h.sink,
	}
}

func testConfig() domain.BotConfig {
	cfg := domain.DefaultBotConfig()
	cfg.CandidateDelay = 0
	cfg.ScanInterval = time.Second
	return cfg
}

// session crea una sesión con esperas instantáneas que registra las duraciones.
func (h *harness) session(t interface{ Fatalf(string, ...any) }, cfg domain.BotConfig, allocated float64, opts ...Option) *Session {
	s, err := NewSession(cfg, allocated, h.deps(), opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.wait = func(ctx context.Context, d time.Duration) error {
		h.waits = append(h.waits, d)
		return ctx.Err()
	}
	return s
}
