package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/oklog/run"
	"github.com/pkg/errors"
)

// listens for interrupts
type signalListener struct {
	sigChannel  chan os.Signal
	cancel      context.CancelFunc
	logger      log.Logger
	interrupted atomic.Bool
}

// newSignalListener registers for signals straight away, so one can't
// slip by before Execute starts.
func newSignalListener(sigChannel chan os.Signal, cancel context.CancelFunc, logger log.Logger) *signalListener {
	signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM)
	return &signalListener{
		sigChannel: sigChannel,
		cancel:     cancel,
		logger:     log.With(logger, "component", "signal_listener"),
	}
}

func (s *signalListener) Execute() error {
	sig, ok := <-s.sigChannel
	if !ok {
		return nil
	}

	level.Info(s.logger).Log(
		"msg", "beginning shutdown via signal",
		"signal_received", sig,
	)
	return errors.Errorf("interrupted by %s", sig)
}

func (s *signalListener) Interrupt(_ error) {
	// Only perform shutdown tasks on first call to interrupt -- no need to repeat on potential extra calls.
	if s.interrupted.Swap(true) {
		return
	}

	s.cancel()
	signal.Stop(s.sigChannel)
	close(s.sigChannel)
}

// runInterruptible runs fn until it returns, or until the process is
// signalled, in which case fn's context is cancelled.
func runInterruptible(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listener := newSignalListener(make(chan os.Signal, 1), cancel, ctxlog.FromContext(ctx))

	var g run.Group
	g.Add(func() error {
		return fn(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(listener.Execute, listener.Interrupt)

	return g.Run()
}
