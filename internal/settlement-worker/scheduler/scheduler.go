package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/processor"
)

// ErrPassInProgress é devolvido ao disparo manual quando uma passada já está rodando
var ErrPassInProgress = errors.New("settlement pass already in progress")

const (
	DefaultInterval     = 2 * time.Hour
	OverdueInterval     = 30 * time.Minute
	DefaultStartupDelay = 30 * time.Second
)

// Runner é quem executa as passadas (processor.Processor)
type Runner interface {
	RunPass(ctx context.Context) (processor.Result, error)
	RunOverdue(ctx context.Context) (int, error)
}

// Locker é o lock opcional entre réplicas. TryLock devolve ok=false quando
// outra instância já detém o lock.
type Locker interface {
	TryLock(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}

type Config struct {
	Interval        time.Duration
	OverdueInterval time.Duration // zero: OverdueInterval
	RunOnStartup    bool
	StartupDelay    time.Duration
	Lock            Locker // opcional
	LockTTL         time.Duration
}

// Status é o retrato exposto em GET /settlement/status
type Status struct {
	Active     bool              `json:"active"`
	Running    bool              `json:"running"`
	NextRun    *time.Time        `json:"next_run"`
	LastRun    *time.Time        `json:"last_run"`
	LastResult *processor.Result `json:"last_result"`
	LastError  string            `json:"last_error,omitempty"`
}

// Scheduler dispara a passada de liquidação e a passada de atrasadas em
// timers independentes. Cada passada tem sua própria trava de reentrância.
type Scheduler struct {
	log    *zap.Logger
	runner Runner
	cfg    Config

	running        atomic.Bool
	overdueRunning atomic.Bool

	mu         sync.Mutex
	active     bool
	nextRun    time.Time
	lastRun    time.Time
	lastResult *processor.Result
	lastErr    string
	stopChan   chan struct{}
	wg         sync.WaitGroup

	// métricas: kind = "settlement" | "overdue", outcome = "ok" | "error" | "skipped"
	OnPass func(kind, outcome string)
}

func New(log *zap.Logger, runner Runner, cfg Config) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OverdueInterval <= 0 {
		cfg.OverdueInterval = OverdueInterval
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	return &Scheduler{log: log, runner: runner, cfg: cfg}
}

// ParseInterval aceita duração Go ("2h") ou a forma "@every 2h"
func ParseInterval(s string) (time.Duration, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSpace(strings.TrimPrefix(v, "@every"))
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval %q must be positive", s)
	}
	return d, nil
}

// Start sobe os timers, cada um na sua goroutine. Chamar Start com o
// scheduler ativo não faz nada.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	s.stopChan = make(chan struct{})

	now := time.Now()
	primary := time.NewTicker(s.cfg.Interval)
	overdue := time.NewTicker(s.cfg.OverdueInterval)

	var startup *time.Timer
	s.nextRun = now.Add(s.cfg.Interval)
	if s.cfg.RunOnStartup {
		startup = time.NewTimer(s.cfg.StartupDelay)
		if at := now.Add(s.cfg.StartupDelay); at.Before(s.nextRun) {
			s.nextRun = at
		}
	}

	s.wg.Add(2)
	go func(stop <-chan struct{}) {
		defer s.wg.Done()
		s.settlementLoop(ctx, stop, primary, startup, now)
	}(s.stopChan)
	go func(stop <-chan struct{}) {
		defer s.wg.Done()
		s.overdueLoop(ctx, stop, overdue)
	}(s.stopChan)

	s.log.Info("settlement scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("overdueInterval", s.cfg.OverdueInterval),
		zap.Bool("runOnStartup", s.cfg.RunOnStartup),
		zap.Bool("distributedLock", s.cfg.Lock != nil),
	)
}

// Stop para os timers e espera as passadas em curso terminarem
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("settlement scheduler stopped")
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Active:    s.active,
		Running:   s.running.Load(),
		LastError: s.lastErr,
	}
	if s.active {
		next := s.nextRun
		st.NextRun = &next
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
	}
	if s.lastResult != nil {
		res := *s.lastResult
		st.LastResult = &res
	}
	return st
}

// settlementLoop só dispara. A passada roda fora do loop, então um tick que
// chega com passada em curso cai na trava e é descartado, nunca enfileirado.
func (s *Scheduler) settlementLoop(ctx context.Context, stop <-chan struct{}, primary *time.Ticker, startup *time.Timer, started time.Time) {
	defer primary.Stop()

	nextPrimary := started.Add(s.cfg.Interval)
	var startupC <-chan time.Time
	if startup != nil {
		defer startup.Stop()
		startupC = startup.C
	}

	for {
		select {
		case <-startupC:
			startupC = nil
			s.setNextRun(nextPrimary)
			s.dispatch(func() { s.tick(ctx, "startup") })
		case t := <-primary.C:
			nextPrimary = t.Add(s.cfg.Interval)
			next := nextPrimary
			if startupAt := started.Add(s.cfg.StartupDelay); startupC != nil && startupAt.Before(next) {
				next = startupAt
			}
			s.setNextRun(next)
			s.dispatch(func() { s.tick(ctx, "scheduled") })
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) overdueLoop(ctx context.Context, stop <-chan struct{}, overdue *time.Ticker) {
	defer overdue.Stop()

	for {
		select {
		case <-overdue.C:
			s.dispatch(func() {
				if _, err := s.TriggerOverdue(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
					s.log.Error("overdue pass failed", zap.Error(err))
				}
			})
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// dispatch roda fn numa goroutine acompanhada pelo WaitGroup de Stop.
// Só é chamado pelos loops, que ainda seguram o contador.
func (s *Scheduler) dispatch(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

func (s *Scheduler) tick(ctx context.Context, trigger string) {
	if _, err := s.runSettlement(ctx, trigger); err != nil && !errors.Is(err, ErrPassInProgress) {
		s.log.Error("settlement pass failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

// TriggerSettlement roda uma passada agora, sob a mesma trava dos timers
func (s *Scheduler) TriggerSettlement(ctx context.Context) (processor.Result, error) {
	return s.runSettlement(ctx, "manual")
}

// TriggerOverdue roda a passada de atrasadas agora
func (s *Scheduler) TriggerOverdue(ctx context.Context) (int, error) {
	if !s.overdueRunning.CompareAndSwap(false, true) {
		s.log.Info("overdue pass still running, skipping")
		s.onPass("overdue", "skipped")
		return 0, ErrPassInProgress
	}
	defer s.overdueRunning.Store(false)

	forced, err := s.runner.RunOverdue(ctx)
	if err != nil {
		s.onPass("overdue", "error")
		return 0, err
	}
	s.onPass("overdue", "ok")
	return forced, nil
}

func (s *Scheduler) runSettlement(ctx context.Context, trigger string) (processor.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Info("settlement pass still running, skipping", zap.String("trigger", trigger))
		s.onPass("settlement", "skipped")
		return processor.Result{}, ErrPassInProgress
	}
	defer s.running.Store(false)

	if s.cfg.Lock != nil {
		release, ok, err := s.cfg.Lock.TryLock(ctx, s.cfg.LockTTL)
		if err != nil {
			s.onPass("settlement", "error")
			return processor.Result{}, fmt.Errorf("acquire settlement lock: %w", err)
		}
		if !ok {
			s.log.Info("settlement pass held by another instance, skipping", zap.String("trigger", trigger))
			s.onPass("settlement", "skipped")
			return processor.Result{}, ErrPassInProgress
		}
		defer release()
	}

	started := time.Now()
	s.log.Info("settlement pass started", zap.String("trigger", trigger))
	res, err := s.runner.RunPass(ctx)

	s.mu.Lock()
	s.lastRun = started
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
		s.lastResult = &res
	}
	s.mu.Unlock()

	if err != nil {
		s.onPass("settlement", "error")
		return processor.Result{}, err
	}
	s.onPass("settlement", "ok")
	return res, nil
}

func (s *Scheduler) onPass(kind, outcome string) {
	if s.OnPass != nil {
		s.OnPass(kind, outcome)
	}
}
