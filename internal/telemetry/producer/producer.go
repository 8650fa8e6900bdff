// Package producer ships security events to Kafka.
package producer

import "zero-trust-session-core/internal/telemetry"

// Producer is an EventEmitter holding a connection that must be closed.
type Producer interface {
	telemetry.EventEmitter
	// Close releases resources. Safe to call more than once.
	Close() error
}
