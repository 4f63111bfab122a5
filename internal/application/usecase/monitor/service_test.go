package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"folio/internal/domain/model"
)

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string][]float64 // consumed one per call, last value repeats
	fail   map[string]bool
	source model.QuoteSource // live when empty
	block  chan struct{}     // when set, lookups wait for it or their context
	calls  int
}

func (f *fakeQuotes) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[symbol] {
		return nil, errors.New("quote unavailable")
	}
	seq := f.prices[symbol]
	if len(seq) == 0 {
		return nil, fmt.Errorf("no price for %s", symbol)
	}
	p := seq[0]
	if len(seq) > 1 {
		f.prices[symbol] = seq[1:]
	}
	src := f.source
	if src == "" {
		src = model.SourceLive
	}
	return &model.Quote{Symbol: symbol, Price: p, Source: src}, nil
}

func (f *fakeQuotes) setSource(src model.QuoteSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = src
}

func (f *fakeQuotes) History(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error) {
	return nil, nil
}

func (f *fakeQuotes) Search(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	return nil, nil
}

func (f *fakeQuotes) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu        sync.Mutex
	scheduled []string
	bodies    map[string]string
	cancelled []string
}

func (n *fakeNotifier) Schedule(ctx context.Context, id, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, id)
	if n.bodies == nil {
		n.bodies = make(map[string]string)
	}
	n.bodies[id] = title + "|" + body
	return nil
}

func (n *fakeNotifier) Cancel(ctx context.Context, ids []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, ids...)
	return nil
}

func (n *fakeNotifier) count(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.scheduled {
		if s == id {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) wasCancelled(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.cancelled {
		if s == id {
			return true
		}
	}
	return false
}

type fakeRepo struct {
	mu     sync.Mutex
	alerts map[string]*model.PriceAlert
	fail   bool
}

func newFakeRepo() *fakeRepo { return &fakeRepo{alerts: make(map[string]*model.PriceAlert)} }

func (r *fakeRepo) ListAlerts(ctx context.Context) ([]*model.PriceAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.PriceAlert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (r *fakeRepo) SaveAlert(ctx context.Context, a *model.PriceAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("db locked")
	}
	r.alerts[a.ID] = a.Clone()
	return nil
}

func (r *fakeRepo) DeleteAlert(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("db locked")
	}
	delete(r.alerts, id)
	return nil
}

func (r *fakeRepo) get(id string) (*model.PriceAlert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	return a, ok
}

type harness struct {
	svc    *Service
	quotes *fakeQuotes
	notif  *fakeNotifier
	repo   *fakeRepo
}

func start(t *testing.T, quotes *fakeQuotes, repo *fakeRepo) *harness {
	t.Helper()
	if repo == nil {
		repo = newFakeRepo()
	}
	h := &harness{quotes: quotes, notif: &fakeNotifier{}, repo: repo}
	h.svc = NewService(ServiceDeps{
		Quotes:       quotes,
		Notifier:     h.notif,
		Repo:         repo,
		Interval:     time.Hour,
		QuoteTimeout: time.Second,
		Parallel:     2,
	})
	seq := 0
	h.svc.newID = func() string {
		seq++
		return fmt.Sprintf("a%d", seq)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("run: %v", err)
		}
	})
	return h
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPriceAboveFiresOnce(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string][]float64{"AAPL": {95, 98, 101, 105}}}
	h := start(t, quotes, nil)
	ctx := ctxT(t)

	a, err := h.svc.Add(ctx, model.AlertInput{Symbol: "aapl", Type: "price_above", TargetPrice: 100})
	if err != nil {
		t.Fatal(err)
	}
	if h.notif.count(model.ConfirmationID(a.ID)) != 1 {
		t.Error("confirmation notification not scheduled")
	}

	for i := 0; i < 4; i++ {
		if err := h.svc.Evaluate(ctx); err != nil {
			t.Fatal(err)
		}
	}

	got, err := h.svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State() != model.AlertFired || got.TriggeredPrice != 101 {
		t.Errorf("state %s triggered at %v", got.State(), got.TriggeredPrice)
	}
	if n := h.notif.count(model.TriggerID(a.ID)); n != 1 {
		t.Errorf("trigger scheduled %d times", n)
	}
	if quotes.Calls() != 3 {
		t.Errorf("fired alert must not be polled again, calls=%d", quotes.Calls())
	}
	stored, _ := h.repo.get(a.ID)
	if stored == nil || stored.IsActive || stored.TriggeredAt == nil {
		t.Errorf("fired state not persisted: %+v", stored)
	}

	h.notif.mu.Lock()
	body := h.notif.bodies[model.TriggerID(a.ID)]
	h.notif.mu.Unlock()
	if want := "AAPL price alert|AAPL is at $101.00. AAPL rose to 100.00 or above"; body != want {
		t.Errorf("trigger body:\n got %s\nwant %s", body, want)
	}
}

func TestFallbackQuotesNeverFireOrSetBaseline(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string][]float64{"AAPL": {150}}, source: model.SourceDemo}
	h := start(t, quotes, nil)
	ctx := ctxT(t)

	above, err := h.svc.Add(ctx, model.AlertInput{Symbol: "AAPL", Type: "price_above", TargetPrice: 1})
	if err != nil {
		t.Fatal(err)
	}
	pct, err := h.svc.Add(ctx, model.AlertInput{Symbol: "AAPL", Type: "percentage_change", Delta: 5})
	if err != nil {
		t.Fatal(err)
	}
	if pct.BaselinePrice != 0 {
		t.Errorf("demo price taken as baseline at add: %v", pct.BaselinePrice)
	}

	for _, src := range []model.QuoteSource{model.SourceDemo, model.SourceCache} {
		quotes.setSource(src)
		if err := h.svc.Evaluate(ctx); err != nil {
			t.Fatal(err)
		}
		got, _ := h.svc.Get(ctx, above.ID)
		if got.State() != model.AlertArmed {
			t.Errorf("%s quote fired the alert: %+v", src, got)
		}
		if got, _ := h.svc.Get(ctx, pct.ID); got.BaselinePrice != 0 {
			t.Errorf("%s quote captured baseline %v", src, got.BaselinePrice)
		}
	}
	if n := h.notif.count(model.TriggerID(above.ID)); n != 0 {
		t.Errorf("trigger scheduled %d times on fallback quotes", n)
	}

	quotes.setSource(model.SourceLive)
	if err := h.svc.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := h.svc.Get(ctx, above.ID); got.State() != model.AlertFired || got.TriggeredPrice != 150 {
		t.Errorf("live quote: %+v", got)
	}
	if got, _ := h.svc.Get(ctx, pct.ID); got.BaselinePrice != 150 {
		t.Errorf("live baseline: %v", got.BaselinePrice)
	}
}

func TestRemoveFiredAlertCancelsIDs(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string][]float64{"MSFT": {50}}}
	h := start(t, quotes, nil)
	ctx := ctxT(t)

	a, err := h.svc.Add(ctx, model.AlertInput{Symbol: "MSFT", Type: "price_below", TargetPrice: 60})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.svc.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.Remove(ctx, a.ID); err != nil {
		t.Fatalf("remove fired alert: %v", err)
	}
	if !h.notif.wasCancelled(model.ConfirmationID(a.ID)) || !h.notif.wasCancelled(model.TriggerID(a.ID)) {
		t.Errorf("both ids must be cancelled, got %v", h.notif.cancelled)
	}
	if _, ok := h.repo.get(a.ID); ok {
		t.Error("alert still in repository")
	}
	list, _ := h.svc.Alerts(ctx)
	if len(list) != 0 {
		t.Errorf("alert still monitored: %+v", list)
	}
	if err := h.svc.Remove(ctx, a.ID); !errors.Is(err, model.ErrAlertNotFound) {
		t.Errorf("second remove: %v", err)
	}
}

func TestToggle(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string][]float64{"AAPL": {150}}}
	h := start(t, quotes, nil)
	ctx := ctxT(t)

	a, _ := h.svc.Add(ctx, model.AlertInput{Symbol: "AAPL", Type: "price_above", TargetPrice: 100})

	off, err := h.svc.Toggle(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if off.State() != model.AlertDisarmed {
		t.Fatalf("state after toggle: %s", off.State())
	}
	if !h.notif.wasCancelled(model.ConfirmationID(a.ID)) {
		t.Error("confirmation must be cancelled on disarm")
	}
	if err := h.svc.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	if quotes.Calls() != 0 {
		t.Error("disarmed alert must not be polled")
	}

	on, err := h.svc.Toggle(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if on.State() != model.AlertArmed {
		t.Fatalf("state after re-arm: %s", on.State())
	}
	if h.notif.count(model.ConfirmationID(a.ID)) != 2 {
		t.Error("re-arm must schedule a fresh confirmation")
	}
	if err := h.svc.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := h.svc.Get(ctx, a.ID)
	if got.State() != model.AlertFired {
		t.Errorf("expected fired, got %s", got.State())
	}

	again, err := h.svc.Toggle(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.State() != model.AlertArmed || again.TriggeredAt != nil {
		t.Errorf("toggling a fired alert re-arms it: %+v", again)
	}

	if _, err := h.svc.Toggle(ctx, "missing"); !errors.Is(err, model.ErrAlertNotFound) {
		t.Errorf("unknown id: %v", err)
	}
}

func TestPercentageChangeBaseline(t *testing.T) {
	quotes := &fakeQuotes{prices: map[string][]float64{"TSLA": {200, 205, 189}}}
	h := start(t, quotes, nil)
	ctx := ctxT(t)

	a, err := h.svc.Add(ctx, model.AlertInput{Symbol: "TSLA", Type: "percentage_change", Delta: -5})
	if err != nil {
		t.Fatal(err)
	}
	if a.BaselinePrice != 200 {
		t.Fatalf("baseline: got %v", a.BaselinePrice)
	}

	_ = h.svc.Evaluate(ctx) // 205: +2.5%
	got, _ := h.svc.Get(ctx, a.ID)
	if got.State() != model.AlertArmed {
		t.Fatalf("fired too early at 205")
	}
	_ = h.svc.Evaluate(ctx) // 189: -5.5%
	got, _ = h.svc.Get(ctx, a.ID)
	if got.State() != model.AlertFired || got.TriggeredPrice != 189 {
		t.Errorf("expected fire at 189: %+v", got)
	}
}

func TestPercentageChangeDeferredBaseline(t *testing.T) {
	quotes := &fakeQuotes{
		prices: map[string][]float64{"NVDA": {100, 120}},
		fail:   map[string]bool{"NVDA": true},
	}
	h := start(t, quotes, nil)
	ctx := ctxT(t)

	a, err := h.svc.Add(ctx, model.AlertInput{Symbol: "NVDA", Type: "percentage_change", Delta: 10})
	if err != nil {
		t.Fatalf("add must succeed without a baseline: %v", err)
	}
	if a.BaselinePrice != 0 {
		t.Fatalf("baseline: %v", a.BaselinePrice)
	}

	quotes.mu.Lock()
	quotes.fail = nil
	quotes.mu.Unlock()

	_ = h.svc.Evaluate(ctx)
	got, _ := h.svc.Get(ctx, a.ID)
	if got.BaselinePrice != 100 || got.State() != model.AlertArmed {
		t.Fatalf("first successful tick captures baseline without firing: %+v", got)
	}
	_ = h.svc.Evaluate(ctx)
	got, _ = h.svc.Get(ctx, a.ID)
	if got.State() != model.AlertFired {
		t.Errorf("expected fire at +20%%: %+v", got)
	}
}

func TestLookupFailureIsolated(t *testing.T) {
	quotes := &fakeQuotes{
		prices: map[string][]float64{"AAPL": {200}, "BAD": {1}},
		fail:   map[string]bool{"BAD": true},
	}
	h := start(t, quotes, nil)
	ctx := ctxT(t)

	good, _ := h.svc.Add(ctx, model.AlertInput{Symbol: "AAPL", Type: "price_above", TargetPrice: 100})
	bad, _ := h.svc.Add(ctx, model.AlertInput{Symbol: "BAD", Type: "price_below", TargetPrice: 100})

	if err := h.svc.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	g, _ := h.svc.Get(ctx, good.ID)
	b, _ := h.svc.Get(ctx, bad.ID)
	if g.State() != model.AlertFired {
		t.Errorf("healthy alert: %s", g.State())
	}
	if b.State() != model.AlertArmed {
		t.Errorf("failing alert must stay armed: %s", b.State())
	}
}

func TestToggleOffDiscardsInflightLookup(t *testing.T) {
	quotes := &fakeQuotes{
		prices: map[string][]float64{"AAPL": {500}},
		block:  make(chan struct{}),
	}
	h := start(t, quotes, nil)
	ctx := ctxT(t)

	a, _ := h.svc.Add(ctx, model.AlertInput{Symbol: "AAPL", Type: "price_above", TargetPrice: 100})

	evalDone := make(chan error, 1)
	go func() { evalDone <- h.svc.Evaluate(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for quotes.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if quotes.Calls() == 0 {
		t.Fatal("lookup never started")
	}

	if _, err := h.svc.Toggle(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	close(quotes.block)

	if err := <-evalDone; err != nil {
		t.Fatal(err)
	}
	got, _ := h.svc.Get(ctx, a.ID)
	if got.State() != model.AlertDisarmed {
		t.Errorf("abandoned lookup must not fire: %s", got.State())
	}
	if h.notif.count(model.TriggerID(a.ID)) != 0 {
		t.Error("trigger notification scheduled for a disarmed alert")
	}
}

func TestStorageFailureOnAdd(t *testing.T) {
	repo := newFakeRepo()
	repo.fail = true
	h := start(t, &fakeQuotes{}, repo)
	ctx := ctxT(t)

	_, err := h.svc.Add(ctx, model.AlertInput{Symbol: "AAPL", Type: "price_above", TargetPrice: 100})
	var se *model.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	list, _ := h.svc.Alerts(ctx)
	if len(list) != 0 {
		t.Error("failed save must not add the alert")
	}
	if h.notif.count(model.ConfirmationID("a1")) != 0 {
		t.Error("no confirmation for an unsaved alert")
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	h := start(t, &fakeQuotes{}, nil)
	ctx := ctxT(t)

	cases := []model.AlertInput{
		{Symbol: "", Type: "price_above", TargetPrice: 1},
		{Symbol: "AAPL", Type: "price_above", TargetPrice: 0},
		{Symbol: "AAPL", Type: "percentage_change", Delta: 0},
		{Symbol: "AAPL", Type: "sideways", TargetPrice: 1},
	}
	for _, in := range cases {
		if _, err := h.svc.Add(ctx, in); !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("%+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestRunLoadsPersistedAlerts(t *testing.T) {
	repo := newFakeRepo()
	a, err := model.NewPriceAlert("saved", model.AlertInput{Symbol: "AAPL", Type: "price_below", TargetPrice: 90}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	repo.alerts[a.ID] = a

	quotes := &fakeQuotes{prices: map[string][]float64{"AAPL": {80}}}
	h := start(t, quotes, repo)
	ctx := ctxT(t)

	if err := h.svc.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := h.svc.Get(ctx, "saved")
	if err != nil {
		t.Fatal(err)
	}
	if got.State() != model.AlertFired {
		t.Errorf("loaded alert: %s", got.State())
	}
}

func TestCallsAfterStop(t *testing.T) {
	svc := NewService(ServiceDeps{Quotes: &fakeQuotes{}, Notifier: &fakeNotifier{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if _, err := svc.Alerts(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
