package srvccqs

import (
	"context"
	"time"

	"github.com/programme-lv/streaks/logger"
)

// P - params
type CmdHandler[P any] interface {
	Handle(ctx context.Context, p P) error
}

// Q - query, R - result
type QueryHandler[Q any, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

// CmdFunc adapts a plain function to CmdHandler.
type CmdFunc[P any] func(ctx context.Context, p P) error

func (f CmdFunc[P]) Handle(ctx context.Context, p P) error { return f(ctx, p) }

// QueryFunc adapts a plain function to QueryHandler.
type QueryFunc[Q any, R any] func(ctx context.Context, q Q) (R, error)

func (f QueryFunc[Q, R]) Handle(ctx context.Context, q Q) (R, error) { return f(ctx, q) }

type loggedCmd[P any] struct {
	name string
	next CmdHandler[P]
}

// WithCmdLogging logs duration and outcome of every command.
func WithCmdLogging[P any](name string, next CmdHandler[P]) CmdHandler[P] {
	return loggedCmd[P]{name: name, next: next}
}

func (h loggedCmd[P]) Handle(ctx context.Context, p P) error {
	start := time.Now()
	err := h.next.Handle(ctx, p)
	log := logger.FromContext(ctx)
	if err != nil {
		log.Warn("command failed", "cmd", h.name, "duration", time.Since(start), "error", err)
		return err
	}
	log.Debug("command executed", "cmd", h.name, "duration", time.Since(start))
	return nil
}

type loggedQuery[Q any, R any] struct {
	name string
	next QueryHandler[Q, R]
}

// WithQueryLogging logs duration and failures of every query.
func WithQueryLogging[Q any, R any](name string, next QueryHandler[Q, R]) QueryHandler[Q, R] {
	return loggedQuery[Q, R]{name: name, next: next}
}

func (h loggedQuery[Q, R]) Handle(ctx context.Context, q Q) (R, error) {
	start := time.Now()
	res, err := h.next.Handle(ctx, q)
	if err != nil {
		logger.FromContext(ctx).Warn("query failed", "query", h.name, "duration", time.Since(start), "error", err)
		return res, err
	}
	logger.FromContext(ctx).Debug("query executed", "query", h.name, "duration", time.Since(start))
	return res, nil
}
