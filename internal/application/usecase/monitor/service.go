package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"folio/internal/domain/model"
)

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("alert engine stopped")

var errNotObserved = errors.New("quote not observed live")

// Service 价格提醒引擎。
// 所有提醒状态只由 Run 所在的 goroutine 读写；公开方法通过 cmds 提交闭包并等待完成。
// 报价查询在独立 goroutine 中进行，结果经 results 回到所有者后才会判断和触发。
type Service struct {
	deps ServiceDeps
	st   *State
	fmt  *Formatter

	cmds    chan command
	results chan lookupResult
	stopped chan struct{}

	now   func() time.Time
	newID func() string
}

func NewService(deps ServiceDeps) *Service {
	deps.applyDefaults()
	return &Service{
		deps:    deps,
		st:      NewState(),
		fmt:     NewFormatter(deps.Currency),
		cmds:    make(chan command),
		results: make(chan lookupResult, 64),
		stopped: make(chan struct{}),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (s *Service) Formatter() *Formatter { return s.fmt }

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Quotes == nil {
		return errors.New("no quote provider")
	}
	if s.deps.Notifier == nil {
		return errors.New("no notifier")
	}
	defer close(s.stopped)

	alerts, err := s.deps.Repo.ListAlerts(ctx)
	if err != nil {
		return &model.StorageError{Op: "fetch alerts", Err: err}
	}
	armed := 0
	for _, a := range alerts {
		s.st.Put(a)
		if a.IsActive {
			armed++
		}
	}
	log.Info().Int("alerts", len(alerts)).Int("armed", armed).Dur("interval", s.deps.Interval).Msg("alert engine started")

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	defer func() {
		s.st.AbandonAll()
		s.st.ReleaseTicks()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("alert engine stopped")
			return nil

		case cmd := <-s.cmds:
			cmd(ctx)

		case <-ticker.C:
			s.startTick(ctx, nil)

		case r := <-s.results:
			s.apply(ctx, r)
		}
	}
}

// Add 新建并布防提醒。percentage_change 尝试立即取基准价，失败则延后到第一次成功查询
func (s *Service) Add(ctx context.Context, in model.AlertInput) (model.PriceAlert, error) {
	a, err := model.NewPriceAlert(s.newID(), in, s.now())
	if err != nil {
		return model.PriceAlert{}, err
	}
	if a.NeedsBaseline() {
		if price, err := s.quoteNow(ctx, a.Symbol); err != nil {
			log.Warn().Err(err).Str("symbol", a.Symbol).Msg("baseline deferred to first evaluation")
		} else {
			a.BaselinePrice = price
		}
	}

	var out model.PriceAlert
	var opErr error
	err = s.do(ctx, func(runCtx context.Context) {
		if err := s.deps.Repo.SaveAlert(ctx, a); err != nil {
			opErr = &model.StorageError{Op: "save alert", Err: err}
			return
		}
		s.st.Put(a)
		s.confirm(ctx, a)
		out = *a.Clone()
		log.Info().Str("alert", a.ID).Str("symbol", a.Symbol).Str("type", string(a.Type)).Msg("alert added")
	})
	if err != nil {
		return model.PriceAlert{}, err
	}
	return out, opErr
}

// Toggle 在布防与撤防之间切换。已触发的提醒切换后重新布防
func (s *Service) Toggle(ctx context.Context, id string) (model.PriceAlert, error) {
	var out model.PriceAlert
	var opErr error
	err := s.do(ctx, func(runCtx context.Context) {
		e, ok := s.st.Get(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
			return
		}
		next := e.alert.Clone()
		if next.IsActive {
			next.Disarm()
		} else {
			next.Arm()
		}
		if err := s.deps.Repo.SaveAlert(ctx, next); err != nil {
			opErr = &model.StorageError{Op: "save alert", Err: err}
			return
		}
		e.abandon()
		e.alert = next

		if next.IsActive {
			s.confirm(ctx, next)
			if next.NeedsBaseline() {
				s.startLookups(runCtx, []*entry{e}, 0)
			}
		} else if err := s.deps.Notifier.Cancel(ctx, []string{next.ConfirmationID()}); err != nil {
			log.Warn().Err(err).Str("alert", id).Msg("cancel confirmation failed")
		}
		out = *next.Clone()
		log.Info().Str("alert", id).Str("state", string(next.State())).Msg("alert toggled")
	})
	if err != nil {
		return model.PriceAlert{}, err
	}
	return out, opErr
}

// Remove 删除提醒并撤回它的两条通知，不论当前状态
func (s *Service) Remove(ctx context.Context, id string) error {
	var opErr error
	err := s.do(ctx, func(runCtx context.Context) {
		if _, ok := s.st.Get(id); !ok {
			opErr = fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
			return
		}
		if err := s.deps.Repo.DeleteAlert(ctx, id); err != nil {
			opErr = &model.StorageError{Op: "delete alert", Err: err}
			return
		}
		s.st.Delete(id)
		ids := []string{model.ConfirmationID(id), model.TriggerID(id)}
		if err := s.deps.Notifier.Cancel(ctx, ids); err != nil {
			log.Warn().Err(err).Str("alert", id).Msg("cancel notifications failed")
		}
		log.Info().Str("alert", id).Msg("alert removed")
	})
	if err != nil {
		return err
	}
	return opErr
}

func (s *Service) Alerts(ctx context.Context) ([]model.PriceAlert, error) {
	var out []model.PriceAlert
	err := s.do(ctx, func(context.Context) {
		out = s.st.Snapshot()
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id string) (model.PriceAlert, error) {
	var out model.PriceAlert
	var opErr error
	err := s.do(ctx, func(context.Context) {
		e, ok := s.st.Get(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
			return
		}
		out = *e.alert.Clone()
	})
	if err != nil {
		return model.PriceAlert{}, err
	}
	return out, opErr
}

// Evaluate 立即执行一轮检查，等本轮全部查询结果处理完后返回
func (s *Service) Evaluate(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.do(ctx, func(runCtx context.Context) {
		s.startTick(runCtx, done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) do(ctx context.Context, fn func(runCtx context.Context)) error {
	done := make(chan struct{})
	cmd := func(runCtx context.Context) {
		defer close(done)
		fn(runCtx)
	}
	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) startTick(runCtx context.Context, done chan struct{}) {
	entries := s.st.Armed()
	tick := s.st.BeginTick(len(entries), done)
	if len(entries) > 0 {
		s.startLookups(runCtx, entries, tick)
	}
}

// startLookups 为每个条目创建可取消的查询，交给 errgroup 限流执行
func (s *Service) startLookups(runCtx context.Context, entries []*entry, tick uint64) {
	type req struct {
		ctx    context.Context
		cancel context.CancelFunc
		id     string
		symbol string
		gen    uint64
	}
	reqs := make([]req, 0, len(entries))
	for _, e := range entries {
		lctx, cancel := context.WithTimeout(runCtx, s.deps.QuoteTimeout)
		e.inflight = true
		e.cancel = cancel
		reqs = append(reqs, req{ctx: lctx, cancel: cancel, id: e.alert.ID, symbol: e.alert.Symbol, gen: e.gen})
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(s.deps.Parallel)
		for _, r := range reqs {
			g.Go(func() error {
				defer r.cancel()
				q, err := s.deps.Quotes.Quote(r.ctx, r.symbol)
				if err == nil && r.ctx.Err() != nil {
					err = r.ctx.Err()
				}
				res := lookupResult{alertID: r.id, gen: r.gen, tick: tick, quote: q, err: err}
				select {
				case s.results <- res:
				case <-runCtx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (s *Service) apply(ctx context.Context, r lookupResult) {
	defer s.st.Settle(r.tick)

	e, ok := s.st.Get(r.alertID)
	if !ok || e.gen != r.gen {
		return
	}
	e.inflight = false
	e.cancel = nil
	if !e.alert.IsActive {
		return
	}
	price, err := observed(r.quote, r.err)
	if err != nil {
		log.Warn().Err(err).Str("alert", r.alertID).Str("symbol", e.alert.Symbol).Msg("quote lookup failed, skipped")
		return
	}

	if e.alert.NeedsBaseline() {
		next := e.alert.Clone()
		next.BaselinePrice = price
		if err := s.deps.Repo.SaveAlert(ctx, next); err != nil {
			log.Error().Err(err).Str("alert", next.ID).Msg("persist baseline failed")
		}
		e.alert = next
		log.Info().Str("alert", next.ID).Float64("baseline", price).Msg("baseline captured")
		return
	}

	if !e.alert.Evaluate(price) {
		return
	}
	s.fire(ctx, e, price)
}

func (s *Service) fire(ctx context.Context, e *entry, price float64) {
	next := e.alert.Clone()
	next.Fire(price, s.now())
	if err := s.deps.Repo.SaveAlert(ctx, next); err != nil {
		log.Error().Err(err).Str("alert", next.ID).Msg("persist fired alert failed")
	}
	e.alert = next

	title, body := s.fmt.Trigger(next, price)
	if err := s.deps.Notifier.Schedule(ctx, next.TriggerID(), title, body); err != nil {
		log.Warn().Err(err).Str("alert", next.ID).Msg("schedule trigger notification failed")
	}
	log.Info().
		Str("alert", next.ID).
		Str("symbol", next.Symbol).
		Float64("price", price).
		Msg("price alert fired")
}

func (s *Service) confirm(ctx context.Context, a *model.PriceAlert) {
	title, body := s.fmt.Confirmation(a)
	if err := s.deps.Notifier.Schedule(ctx, a.ConfirmationID(), title, body); err != nil {
		log.Warn().Err(err).Str("alert", a.ID).Msg("schedule confirmation failed")
	}
}

func (s *Service) quoteNow(ctx context.Context, symbol string) (float64, error) {
	qctx, cancel := context.WithTimeout(ctx, s.deps.QuoteTimeout)
	defer cancel()
	return observed(s.deps.Quotes.Quote(qctx, symbol))
}

// observed 只有本次实时取到的价格才能触发提醒或作为基准；缓存和演示报价按查询失败处理
func observed(q *model.Quote, err error) (float64, error) {
	switch {
	case err != nil:
		return 0, err
	case q == nil || q.Price <= 0:
		return 0, errors.New("empty quote")
	case q.Source != model.SourceLive:
		return 0, fmt.Errorf("%w: %s source", errNotObserved, q.Source)
	}
	return q.Price, nil
}
