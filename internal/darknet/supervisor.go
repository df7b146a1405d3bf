package darknet

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/multierr"

	"github.com/chiquitav2/wg-dark/internal/shared/errors"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

// Background is a task that runs while the session is Active. The poller
// satisfies it.
type Background interface {
	Start(ctx context.Context) error
	Wait()
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithSignals replaces OS signal delivery with the given channel.
func WithSignals(ch <-chan os.Signal) SupervisorOption {
	return func(s *Supervisor) { s.signals = ch }
}

// Supervisor keeps an Active session running until SIGINT, SIGTERM, Stop or
// context cancellation, then tears it down exactly once.
type Supervisor struct {
	session *Session
	tasks   []Background
	signals <-chan os.Signal
	logger  *logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	ready    chan struct{}

	mu          sync.Mutex
	cancelTasks context.CancelFunc
	once        sync.Once
	teardownErr error
}

// NewSupervisor creates a supervisor for an Active session.
func NewSupervisor(session *Session, log *logger.Logger, tasks []Background, opts ...SupervisorOption) *Supervisor {
	if log == nil {
		log = logger.NewDevelopment("supervisor")
	}
	s := &Supervisor{
		session: session,
		tasks:   tasks,
		logger:  log.WithComponent("supervisor"),
		stop:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready is closed once the background tasks and the signal watch are running.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

// Stop requests teardown. It is safe to call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run starts the background tasks and blocks until a shutdown trigger, then
// tears the session down. The returned error only reports teardown problems;
// the caller still exits successfully.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx = s.session.Context(ctx)
	if st := s.session.State(); st != StateActive {
		return fmt.Errorf("cannot supervise session in state %s", st)
	}

	signals := s.signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	taskCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelTasks = cancel
	s.mu.Unlock()
	defer cancel()

	for _, task := range s.tasks {
		if err := task.Start(taskCtx); err != nil {
			s.logger.ErrorCtx(ctx, "failed to start background task", err)
			return multierr.Append(fmt.Errorf("failed to start background task: %w", err), s.Teardown(ctx))
		}
	}
	close(s.ready)

	select {
	case sig := <-signals:
		s.logger.InfoContext(ctx, "received shutdown signal", slog.String("signal", sig.String()))
	case <-s.stop:
		s.logger.InfoContext(ctx, "stop requested")
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "context cancelled")
	}

	return s.Teardown(context.WithoutCancel(ctx))
}

// Teardown moves the session through Terminating to Terminated: it cancels
// the background tasks, destroys the interface and waits for the tasks to
// exit. Only the first call does any work; later calls return its result.
func (s *Supervisor) Teardown(ctx context.Context) error {
	s.once.Do(func() {
		s.teardownErr = s.teardown(ctx)
	})
	return s.teardownErr
}

func (s *Supervisor) teardown(ctx context.Context) error {
	op := s.logger.StartOp(ctx, "teardown")

	var err error
	if terr := s.session.Transition(ctx, StateTerminating); terr != nil {
		err = multierr.Append(err, terr)
	}

	s.mu.Lock()
	cancel := s.cancelTasks
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if iface := s.session.Interface(); iface != nil {
		if derr := iface.Down(ctx); derr != nil && !stderrors.Is(derr, errors.ErrInterfaceClosed) {
			err = multierr.Append(err, derr)
		}
	}

	for _, task := range s.tasks {
		task.Wait()
	}

	if terr := s.session.Transition(ctx, StateTerminated); terr != nil {
		err = multierr.Append(err, terr)
	}

	if err != nil {
		op.Fail(err, "teardown finished with errors")
		return err
	}
	op.Complete("darknet left")
	return nil
}
