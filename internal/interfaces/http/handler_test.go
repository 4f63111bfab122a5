package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"folio/internal/application/service"
	"folio/internal/application/usecase/monitor"
	"folio/internal/domain/model"
	"folio/internal/infrastructure/storage"
)

type fixedQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (f *fixedQuotes) set(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

func (f *fixedQuotes) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	symbol = model.NormalizeSymbol(symbol)
	return &model.Quote{Symbol: symbol, Price: f.prices[symbol], Source: model.SourceLive}, nil
}

func (f *fixedQuotes) History(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Bar, error) {
	return []model.Bar{{Close: 1}, {Close: 2}}, nil
}

func (f *fixedQuotes) Search(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	return []model.SymbolMatch{{Symbol: "AAPL", Name: "Apple Inc."}}, nil
}

type nopNotifier struct{}

func (nopNotifier) Schedule(ctx context.Context, id, title, body string) error { return nil }
func (nopNotifier) Cancel(ctx context.Context, ids []string) error             { return nil }

type env struct {
	handler http.Handler
	quotes  *fixedQuotes
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := storage.NewMemoryStore()
	book := service.NewPositionService(store)
	quotes := &fixedQuotes{prices: map[string]float64{"AAPL": 100}}
	alerts := monitor.NewService(monitor.ServiceDeps{
		Quotes:   quotes,
		Notifier: nopNotifier{},
		Repo:     store,
		Interval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = alerts.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h := NewHandler(book, service.NewPriceService(book, quotes, 2), alerts, quotes, "USD")
	return &env{handler: NewServer(":0", h).Handler(), quotes: quotes}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestPositionLifecycle(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/positions", `{"symbol":"aapl","name":"Apple","quantity":10,"buy_price":100,"stop_loss":90,"price_target":150}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", w.Code, w.Body)
	}
	p := decode[model.Position](t, w)
	if p.Symbol != "AAPL" || !p.IsActive || p.CurrentPrice != 100 {
		t.Fatalf("added: %+v", p)
	}

	if w := e.do(t, http.MethodPost, "/api/v1/positions", `{"symbol":"MSFT","quantity":0,"buy_price":10}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid quantity: %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/v1/positions", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: %d", w.Code)
	}

	w = e.do(t, http.MethodPatch, "/api/v1/positions/"+p.ID, `{"notes":"long term"}`)
	if w.Code != http.StatusOK || decode[model.Position](t, w).Notes != "long term" {
		t.Errorf("edit: %d %s", w.Code, w.Body)
	}

	w = e.do(t, http.MethodPost, "/api/v1/positions/"+p.ID+"/close", `{"sell_price":120}`)
	if w.Code != http.StatusOK {
		t.Fatalf("close: %d %s", w.Code, w.Body)
	}
	if closed := decode[model.Position](t, w); closed.IsActive || closed.SellPrice != 120 {
		t.Errorf("closed: %+v", closed)
	}
	if w := e.do(t, http.MethodPost, "/api/v1/positions/"+p.ID+"/close", `{"sell_price":130}`); w.Code != http.StatusConflict {
		t.Errorf("second close: %d", w.Code)
	}

	if w := e.do(t, http.MethodGet, "/api/v1/positions/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown position: %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/api/v1/positions/"+p.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete: %d", w.Code)
	}
	if list := decode[[]model.Position](t, e.do(t, http.MethodGet, "/api/v1/positions", "")); len(list) != 0 {
		t.Errorf("expected empty book, got %d", len(list))
	}
}

func TestPortfolioAndRefresh(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/api/v1/positions", `{"symbol":"AAPL","quantity":10,"buy_price":100,"current_price":100}`)

	type portfolio struct {
		TotalValue float64           `json:"total_value"`
		Display    map[string]string `json:"display"`
	}
	got := decode[portfolio](t, e.do(t, http.MethodGet, "/api/v1/portfolio", ""))
	if got.TotalValue != 1000 || got.Display["total_value"] != "$1,000.00" {
		t.Errorf("portfolio: %+v", got)
	}

	e.quotes.set("AAPL", 110)
	w := e.do(t, http.MethodPost, "/api/v1/prices/refresh", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"updated":1`) {
		t.Fatalf("refresh: %d %s", w.Code, w.Body)
	}
	got = decode[portfolio](t, e.do(t, http.MethodGet, "/api/v1/portfolio", ""))
	if got.Display["total_value"] != "$1,100.00" || got.Display["total_pnl_percent"] != "+10.00%" {
		t.Errorf("after refresh: %+v", got.Display)
	}
}

func TestViewAndExport(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/api/v1/positions", `{"symbol":"MSFT","quantity":1,"buy_price":300}`)
	e.do(t, http.MethodPost, "/api/v1/positions", `{"symbol":"AAPL","quantity":2,"buy_price":100}`)

	if w := e.do(t, http.MethodPut, "/api/v1/view", `{"filter":"winners"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown filter: %d", w.Code)
	}

	type view struct {
		Positions []model.Position `json:"positions"`
	}
	v := decode[view](t, e.do(t, http.MethodPut, "/api/v1/view", `{"sort":"symbol"}`))
	if len(v.Positions) != 2 || v.Positions[0].Symbol != "AAPL" {
		t.Errorf("sorted view: %+v", v.Positions)
	}
	v = decode[view](t, e.do(t, http.MethodGet, "/api/v1/view", ""))
	if len(v.Positions) != 2 || v.Positions[0].Symbol != "AAPL" {
		t.Errorf("view should keep its query: %+v", v.Positions)
	}

	w := e.do(t, http.MethodGet, "/api/v1/export.csv", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("export: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "Symbol,Name,Quantity") {
		t.Errorf("csv: %q", w.Body.String())
	}
}

func TestAlertEndpoints(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/alerts", `{"symbol":"AAPL","alert_type":"price_above","target_price":105,"message":"take profit"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add alert: %d %s", w.Code, w.Body)
	}
	type alert struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	a := decode[alert](t, w)
	if a.State != "armed" {
		t.Errorf("new alert state: %q", a.State)
	}

	if w := e.do(t, http.MethodPost, "/api/v1/alerts", `{"symbol":"AAPL","alert_type":"sideways"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid alert: %d", w.Code)
	}

	list := decode[[]alert](t, e.do(t, http.MethodPost, "/api/v1/alerts/check", ""))
	if len(list) != 1 || list[0].State != "armed" {
		t.Fatalf("below target should stay armed: %+v", list)
	}

	e.quotes.set("AAPL", 106)
	list = decode[[]alert](t, e.do(t, http.MethodPost, "/api/v1/alerts/check", ""))
	if len(list) != 1 || list[0].State != "fired" {
		t.Fatalf("expected fired: %+v", list)
	}

	w = e.do(t, http.MethodPost, "/api/v1/alerts/"+a.ID+"/toggle", "")
	if w.Code != http.StatusOK || decode[alert](t, w).State != "armed" {
		t.Errorf("re-arm: %d %s", w.Code, w.Body)
	}

	if w := e.do(t, http.MethodDelete, "/api/v1/alerts/"+a.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("remove: %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/api/v1/alerts/"+a.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("remove twice: %d", w.Code)
	}
}

func TestQuoteEndpoints(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/quotes/aapl", "")
	if w.Code != http.StatusOK || decode[model.Quote](t, w).Price != 100 {
		t.Errorf("quote: %d %s", w.Code, w.Body)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/quotes/AAPL/history?timeframe=10Y", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad timeframe: %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/api/v1/quotes/AAPL/history?timeframe=1w", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"timeframe":"1W"`) {
		t.Errorf("history: %d %s", w.Code, w.Body)
	}
	if matches := decode[[]model.SymbolMatch](t, e.do(t, http.MethodGet, "/api/v1/search?q=app", "")); len(matches) != 1 {
		t.Errorf("search: %+v", matches)
	}
}
