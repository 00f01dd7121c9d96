package consumer

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"
)

// ErrorClass is the retry supervisor's failure taxonomy:
// transient, permanent, or fatal.
type ErrorClass int

const (
	// ClassTransient covers network blips and leader changes: retry with
	// fixed backoff, then escalate.
	ClassTransient ErrorClass = iota
	// ClassPermanent covers decode failures and schema violations: skip,
	// quarantine, commit offset.
	ClassPermanent
	// ClassFatal covers unrecoverable local state: halt the worker, do not
	// commit.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifiedError pairs an error with its retry class. Handlers may return
// one directly; any other error defaults to ClassPermanent, since
// decode/schema failures are the common unclassified case.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify extracts the ErrorClass from err, defaulting to ClassPermanent.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}
	var ce *ClassifiedError
	if ok := asClassifiedError(err, &ce); ok {
		return ce.Class
	}
	return ClassPermanent
}

func asClassifiedError(err error, target **ClassifiedError) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ce, ok := err.(*ClassifiedError); ok {
			*target = ce
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

const (
	maxTransientAttempts = 3
	transientBackoff     = 1 * time.Second
)

// QuarantineSink receives records the Retry Supervisor gives up on.
// Quarantine writes the raw bytes to a side channel that lives outside
// this process; the interface is kept pluggable at that boundary.
type QuarantineSink interface {
	Quarantine(ctx context.Context, topic string, partition int32, offset int64, raw []byte, cause error)
}

// SlogQuarantineSink is the default development sink: a structured log line
// with the raw bytes base64-encoded.
type SlogQuarantineSink struct {
	Logger *slog.Logger
}

func (s *SlogQuarantineSink) Quarantine(_ context.Context, topic string, partition int32, offset int64, raw []byte, cause error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("quarantined record",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"cause", cause,
		"raw_base64", base64.StdEncoding.EncodeToString(raw),
	)
}

// HandlerFunc processes one decoded record; errors should be a
// *ClassifiedError when the caller has a more specific class than the
// Permanent default.
type HandlerFunc func(ctx context.Context, raw []byte) error

// WithRetry wraps handler with the bounded-retry-then-quarantine
// policy. It returns an error only when the record should NOT be committed:
// ClassFatal, or ClassTransient exhausted without Fatal semantics — in
// either case the error surfaces to the caller, which halts the worker
// rather than committing.
func WithRetry(handler HandlerFunc, sink QuarantineSink, topic string, partition int32, offset int64) HandlerFunc {
	return func(ctx context.Context, raw []byte) error {
		var lastErr error
		for attempt := 1; attempt <= maxTransientAttempts; attempt++ {
			err := handler(ctx, raw)
			if err == nil {
				return nil
			}
			lastErr = err

			switch Classify(err) {
			case ClassFatal:
				return err
			case ClassPermanent:
				sink.Quarantine(ctx, topic, partition, offset, raw, err)
				return nil
			case ClassTransient:
				if attempt == maxTransientAttempts {
					return err
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(transientBackoff):
				}
			}
		}
		return lastErr
	}
}
