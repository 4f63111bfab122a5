package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
)

var ErrClosed = errors.New("notifier closed")

type pending struct {
	timer *time.Timer
	seq   uint64
	n     port.Notification
}

// Scheduler 按 id 管理待发送的通知。到期后依次交给每个 Sender；
// 取消会停止计时器，并让支持撤回的 Sender 撤回已发出的同 id 通知
type Scheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	timeout time.Duration
	senders []port.Sender
	pending map[string]pending
	seq     uint64
	closed  bool
	wg      sync.WaitGroup

	now func() time.Time
}

func NewScheduler(delay, sendTimeout time.Duration, senders ...port.Sender) *Scheduler {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	out := make([]port.Sender, 0, len(senders))
	for _, s := range senders {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Scheduler{
		delay:   delay,
		timeout: sendTimeout,
		senders: out,
		pending: make(map[string]pending),
		now:     time.Now,
	}
}

// Schedule 安排通知；同 id 再次安排会替换尚未发送的那一条
func (s *Scheduler) Schedule(ctx context.Context, id, title, body string) error {
	n := port.Notification{ID: id, Title: title, Body: body}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if p, ok := s.pending[id]; ok {
		p.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.pending[id] = pending{
		seq:   seq,
		n:     n,
		timer: time.AfterFunc(s.delay, func() { s.deliver(seq, n) }),
	}
	return nil
}

// Cancel 取消未知 id 是空操作
func (s *Scheduler) Cancel(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, id := range ids {
		if p, ok := s.pending[id]; ok {
			p.timer.Stop()
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, snd := range s.senders {
		r, ok := snd.(port.Retractor)
		if !ok {
			continue
		}
		if err := r.Retract(ctx, ids); err != nil {
			log.Warn().Err(err).Str("sender", snd.Name()).Strs("ids", ids).Msg("retract failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Pending reports whether id is scheduled and not yet delivered.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Close 停止计时器，把尚未到期的通知立即发出，再等待进行中的投递结束
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	flush := make([]port.Notification, 0, len(s.pending))
	// 仍在 pending 中的都还没发出；已触发但未拿到锁的 deliver 会发现条目已删除
	for id, p := range s.pending {
		p.timer.Stop()
		flush = append(flush, p.n)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	for _, n := range flush {
		s.send(n)
	}
	s.wg.Wait()
	return nil
}

func (s *Scheduler) deliver(seq uint64, n port.Notification) {
	s.mu.Lock()
	p, ok := s.pending[n.ID]
	if !ok || p.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.pending, n.ID)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.send(n)
}

func (s *Scheduler) send(n port.Notification) {
	n.Ts = s.now().UnixMilli()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	for _, snd := range s.senders {
		if err := snd.Send(ctx, n); err != nil {
			log.Warn().Err(err).Str("sender", snd.Name()).Str("id", n.ID).Msg("notification delivery failed")
		}
	}
}
