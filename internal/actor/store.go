// Package actor runs per-key serialized workers. Every operation against a
// user's state is funnelled through that user's single goroutine, so the
// state itself needs no locks.
package actor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// ErrClosed is returned once the store has been closed.
var ErrClosed = apperr.Internal(nil, "actor store closed")

// Loader builds the state of key on first use, and again after a failure
// invalidated it.
type Loader[S any] func(ctx context.Context, key string) (*S, error)

// Func is a unit of work executed inside an actor.
type Func[S any] func(ctx context.Context, state *S) error

// Config tunes actor lifecycles.
type Config struct {
	MailboxSize int
	IdleTimeout time.Duration
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{MailboxSize: 64, IdleTimeout: 10 * time.Minute}
}

// Store owns one actor per key.
type Store[S any] struct {
	load   Loader[S]
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	actors map[string]*actor[S]
	closed bool
	wg     sync.WaitGroup
}

type message[S any] struct {
	ctx   context.Context
	fn    Func[S]
	reply chan error
}

type actor[S any] struct {
	key     string
	mailbox chan message[S]
	stop    chan struct{}

	mu      sync.Mutex
	pending int
	stopped bool
}

// NewStore creates a store.
func NewStore[S any](load Loader[S], cfg Config, logger *slog.Logger) *Store[S] {
	def := DefaultConfig()
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = def.MailboxSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[S]{
		load:   load,
		cfg:    cfg,
		logger: logger,
		actors: make(map[string]*actor[S]),
	}
}

// Do runs fn serially with every other call for key and waits for it.
// Domain errors leave the cached state in place; any other failure drops
// it so the next call reloads from storage.
func (s *Store[S]) Do(ctx context.Context, key string, fn Func[S]) error {
	msg := message[S]{ctx: ctx, fn: fn, reply: make(chan error, 1)}
	for {
		a, err := s.actorFor(key)
		if err != nil {
			return err
		}

		a.mu.Lock()
		if a.stopped {
			// Lost a race with idle eviction; the next lookup spawns a fresh actor.
			a.mu.Unlock()
			continue
		}
		a.pending++
		a.mu.Unlock()

		select {
		case a.mailbox <- msg:
		case <-a.stop:
			a.release()
			return ErrClosed
		case <-ctx.Done():
			a.release()
			return ctx.Err()
		}
		break
	}

	select {
	case err := <-msg.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Keys returns the keys with a live actor.
func (s *Store[S]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.actors))
	for k := range s.actors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close stops every actor and refuses further work. Queued messages are
// answered with ErrClosed.
func (s *Store[S]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, a := range s.actors {
		close(a.stop)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Store[S]) actorFor(key string) (*actor[S], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if a, ok := s.actors[key]; ok {
		return a, nil
	}
	a := &actor[S]{
		key:     key,
		mailbox: make(chan message[S], s.cfg.MailboxSize),
		stop:    make(chan struct{}),
	}
	s.actors[key] = a
	s.wg.Add(1)
	go s.run(a)
	return a, nil
}

func (a *actor[S]) release() {
	a.mu.Lock()
	a.pending--
	a.mu.Unlock()
}

func (s *Store[S]) run(a *actor[S]) {
	defer s.wg.Done()

	var state *S
	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg := <-a.mailbox:
			a.release()
			state = s.handle(a.key, state, msg)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.IdleTimeout)

		case <-idle.C:
			if s.evict(a) {
				return
			}
			idle.Reset(s.cfg.IdleTimeout)

		case <-a.stop:
			for {
				select {
				case msg := <-a.mailbox:
					a.release()
					msg.reply <- ErrClosed
				default:
					return
				}
			}
		}
	}
}

// evict retires an idle actor unless a sender is about to deliver to it.
func (s *Store[S]) evict(a *actor[S]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending > 0 {
		return false
	}
	a.stopped = true
	delete(s.actors, a.key)
	s.logger.Debug("evicted idle actor", "key", a.key)
	return true
}

func (s *Store[S]) handle(key string, state *S, msg message[S]) (next *S) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("actor call panicked", "key", key, "panic", r, "stack", string(debug.Stack()))
			msg.reply <- apperr.Internal(fmt.Errorf("panic: %v", r), "actor call failed")
			next = nil
		}
	}()

	if err := msg.ctx.Err(); err != nil {
		msg.reply <- err
		return state
	}

	if state == nil {
		loaded, err := s.load(msg.ctx, key)
		if err != nil {
			msg.reply <- apperr.Internal(err, "failed to load state")
			return nil
		}
		state = loaded
	}

	err := msg.fn(msg.ctx, state)
	msg.reply <- err
	if err != nil && !apperr.IsDomain(err) {
		s.logger.Warn("dropping actor state after failure", "key", key, "error", err)
		return nil
	}
	return state
}
