package logger

import (
	"context"
	"log/slog"
	"time"
)

// Operation logs the start, completion or failure of one lifecycle step.
type Operation struct {
	logger    *Logger
	ctx       context.Context
	name      string
	StartTime time.Time
	attrs     []any
}

// StartOp begins tracking an operation
func (l *Logger) StartOp(ctx context.Context, name string, args ...any) *Operation {
	op := &Operation{
		logger:    l,
		ctx:       ctx,
		name:      name,
		StartTime: time.Now(),
		attrs:     args,
	}

	attrs := append([]any{slog.String("operation", name)}, args...)
	l.WithContext(ctx).Debug("operation started", attrs...)

	return op
}

// With adds attributes to the operation
func (op *Operation) With(args ...any) *Operation {
	op.attrs = append(op.attrs, args...)
	return op
}

// Complete logs successful operation completion
func (op *Operation) Complete(msg string, args ...any) {
	if msg == "" {
		msg = "operation completed"
	}
	op.logger.WithContext(op.ctx).Info(msg, op.fields(args)...)
}

// Fail logs failed operation
func (op *Operation) Fail(err error, msg string, args ...any) {
	if msg == "" {
		msg = "operation failed"
	}
	op.logger.WithContext(op.ctx).Error(msg, append(errorAttrs(err), op.fields(args)...)...)
}

// Progress logs operation progress (debug level)
func (op *Operation) Progress(msg string, args ...any) {
	op.logger.WithContext(op.ctx).Debug(msg, op.fields(args)...)
}

func (op *Operation) fields(args []any) []any {
	attrs := append(
		[]any{
			slog.String("operation", op.name),
			slog.Duration("duration", time.Since(op.StartTime)),
		},
		op.attrs...,
	)
	return append(attrs, args...)
}
