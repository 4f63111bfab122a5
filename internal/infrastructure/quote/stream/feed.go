// Package stream keeps a live trade feed from the Alpaca v2 websocket and serves it as quotes.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// DefaultURL IEX 免费行情
const DefaultURL = "wss://stream.data.alpaca.markets/v2/iex"

// RetryConfig 重连退避
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetryConfig = RetryConfig{
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Feed 逐笔成交推送，实现 port.PriceFeed
type Feed struct {
	url    string
	key    string
	secret string
	retry  RetryConfig
}

var _ port.PriceFeed = (*Feed)(nil)

func NewFeed(url, key, secret string) *Feed {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultURL
	}
	return &Feed{url: url, key: key, secret: secret, retry: DefaultRetryConfig}
}

func (f *Feed) SetRetryConfig(cfg RetryConfig) { f.retry = cfg }

func (f *Feed) Name() string { return "alpaca-stream" }

type controlMsg struct {
	Action string   `json:"action"`
	Key    string   `json:"key,omitempty"`
	Secret string   `json:"secret,omitempty"`
	Trades []string `json:"trades,omitempty"`
}

type streamMsg struct {
	T      string      `json:"T"`
	Symbol string      `json:"S"`
	Price  json.Number `json:"p"`
	Size   json.Number `json:"s"`
	Time   time.Time   `json:"t"`
	Code   int         `json:"code"`
	Msg    string      `json:"msg"`
}

func (f *Feed) Subscribe(ctx context.Context, symbols []string) (<-chan port.Tick, error) {
	syms := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = model.NormalizeSymbol(s); s != "" {
			syms = append(syms, s)
		}
	}
	if len(syms) == 0 {
		return nil, errors.New("symbols empty")
	}
	out := make(chan port.Tick, 1024)
	go f.run(ctx, syms, out)
	return out, nil
}

func (f *Feed) run(ctx context.Context, symbols []string, out chan<- port.Tick) {
	defer close(out)

	backoff := f.retry.InitialDelay
	for {
		if ctx.Err() != nil {
			return
		}

		log.Info().Str("feed", f.Name()).Str("url", f.url).Int("symbols", len(symbols)).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, f.url, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, f.retry.MaxDelay)
			continue
		}

		if err = f.handshake(conn, symbols); err == nil {
			backoff = f.retry.InitialDelay
			log.Info().Str("feed", f.Name()).Msg("ws connected")
			err = readLoop(ctx, conn, func(b []byte) error {
				return f.dispatch(ctx, b, out)
			})
		}
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		if !sleep(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, f.retry.MaxDelay)
	}
}

// handshake 认证后订阅成交；服务端按顺序处理，两条可以连续发送
func (f *Feed) handshake(conn *websocket.Conn, symbols []string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetWriteDeadline(time.Time{})
	if err := conn.WriteJSON(controlMsg{Action: "auth", Key: f.key, Secret: f.secret}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := conn.WriteJSON(controlMsg{Action: "subscribe", Trades: symbols}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (f *Feed) dispatch(ctx context.Context, b []byte, out chan<- port.Tick) error {
	var msgs []streamMsg
	if err := json.Unmarshal(b, &msgs); err != nil {
		log.Error().Str("feed", f.Name()).Err(err).Msg("json unmarshal failed")
		return nil
	}
	for _, m := range msgs {
		switch m.T {
		case "error":
			return fmt.Errorf("stream error %d: %s", m.Code, m.Msg)
		case "t":
			tick, ok := toTick(m)
			if !ok {
				continue
			}
			select {
			case out <- tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func toTick(m streamMsg) (port.Tick, bool) {
	sym := model.NormalizeSymbol(m.Symbol)
	px, err := decimal.NewFromString(m.Price.String())
	if sym == "" || err != nil || !px.IsPositive() {
		return port.Tick{}, false
	}
	ts := m.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return port.Tick{
		Symbol:   sym,
		PriceStr: px.String(),
		PriceNum: px.InexactFloat64(),
		Ts:       ts.UnixMilli(),
	}, true
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte) error) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if err := onMsg(b); err != nil {
				errCh <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// 关闭连接让读协程退出
			_ = conn.Close()
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
