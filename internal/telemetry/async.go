package telemetry

import (
	"context"
	"log"
	"time"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the server stops before shutting
// down OTel providers so in-flight async emits can finish. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// emitter and event may be nil. Request cancellation does not abort the emit.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}

// Multi returns an emitter that sends each event to every non-nil emitter and
// returns the first error.
func Multi(emitters ...EventEmitter) EventEmitter {
	var out multiEmitter
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multiEmitter []EventEmitter

func (m multiEmitter) Emit(ctx context.Context, event *Event) error {
	var first error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
