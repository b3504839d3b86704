// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import "log/slog"

const (
	// DefaultCapacity is the default capacity of the inbound and
	// outbound byte streams.
	DefaultCapacity = 64000

	// DefaultInitialRTOMs is the default initial retransmission
	// timeout in milliseconds.
	DefaultInitialRTOMs = 1000

	// DefaultMaxPayloadSize is the default maximum payload size
	// of a single segment.
	DefaultMaxPayloadSize = 1000

	// DefaultMaxRetransmissions is the default number of consecutive
	// retransmissions after which callers should give up.
	DefaultMaxRetransmissions = 8
)

// Config contains optional settings for [*Sender] and [*Receiver].
//
// The zero value is ready to use. A nil [*Config] is also valid and
// equivalent to the zero value.
type Config struct {
	// InitialRTOMs is the optional initial retransmission timeout in
	// milliseconds. If zero, we use [DefaultInitialRTOMs].
	InitialRTOMs uint64

	// Logger is the optional structured logger. If nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// MaxPayloadSize is the optional maximum payload size. If
	// zero, we use [DefaultMaxPayloadSize].
	MaxPayloadSize uint64

	// MaxRetransmissions is the optional number of consecutive
	// retransmissions after which the caller should abandon the
	// connection. The [*Sender] does not use this value itself. If
	// zero, we use [DefaultMaxRetransmissions].
	MaxRetransmissions uint64
}

// DefaultConfig is the default [*Config] used by this package.
var DefaultConfig = &Config{}

// initialRTO returns the initial RTO in milliseconds.
func (c *Config) initialRTO() uint64 {
	if c != nil && c.InitialRTOMs > 0 {
		return c.InitialRTOMs
	}
	return DefaultInitialRTOMs
}

// maxPayloadSize returns the maximum payload size.
func (c *Config) maxPayloadSize() uint64 {
	if c != nil && c.MaxPayloadSize > 0 {
		return c.MaxPayloadSize
	}
	return DefaultMaxPayloadSize
}

// RetransmissionLimit returns the number of consecutive retransmissions
// after which the caller should give up.
func (c *Config) RetransmissionLimit() uint64 {
	if c != nil && c.MaxRetransmissions > 0 {
		return c.MaxRetransmissions
	}
	return DefaultMaxRetransmissions
}

// logger returns the logger, which may be nil.
func (c *Config) logger() *slog.Logger {
	if c != nil {
		return c.Logger
	}
	return nil
}
