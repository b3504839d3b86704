// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

// retransmissionTimer is a caller-driven retransmission timer.
//
// Time only advances through tick, so the timer never fires on its own.
type retransmissionTimer struct {
	// active indicates whether the timer is running.
	active bool

	// elapsed is the time in milliseconds since the last (re)start.
	elapsed uint64

	// rto is the current timeout in milliseconds.
	rto uint64
}

// newRetransmissionTimer creates a stopped timer with the given timeout.
func newRetransmissionTimer(rto uint64) retransmissionTimer {
	return retransmissionTimer{rto: rto}
}

// expired returns whether the running timer reached its timeout.
func (t *retransmissionTimer) expired() bool {
	return t.active && t.elapsed >= t.rto
}

// backoff doubles the timeout.
func (t *retransmissionTimer) backoff() {
	t.rto *= 2
}

// reload sets the timeout and clears the elapsed time.
func (t *retransmissionTimer) reload(rto uint64) {
	t.rto = rto
	t.elapsed = 0
}

// reset clears the elapsed time.
func (t *retransmissionTimer) reset() {
	t.elapsed = 0
}

// start starts the timer from zero.
func (t *retransmissionTimer) start() {
	t.active = true
	t.elapsed = 0
}

// stop stops the timer.
func (t *retransmissionTimer) stop() {
	t.active = false
	t.elapsed = 0
}

// tick advances a running timer by ms milliseconds.
func (t *retransmissionTimer) tick(ms uint64) *retransmissionTimer {
	if t.active {
		t.elapsed += ms
	}
	return t
}
