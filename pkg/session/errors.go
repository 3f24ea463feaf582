package session

import "errors"

// Session error taxonomy, spec §7.
var (
	ErrConnectFailed     = errors.New("session: connect failed")
	ErrConnectTimeout    = errors.New("session: connect timeout")
	ErrSelectFailed      = errors.New("session: select failed")
	ErrSelectTimeout     = errors.New("session: select timeout")
	ErrDeselectTimeout   = errors.New("session: deselect timeout")
	ErrLinktestTimeout   = errors.New("session: linktest timeout")
	ErrT3ReplyTimeout    = errors.New("session: T3 reply timeout")
	ErrT7Timeout         = errors.New("session: T7 not-selected timeout")
	ErrT8Timeout         = errors.New("session: T8 inter-character timeout")
	ErrProtocolViolation = errors.New("session: protocol violation")
	ErrPeerClosed        = errors.New("session: peer closed connection")
	ErrRejected          = errors.New("session: rejected by peer")
	ErrCanceled          = errors.New("session: canceled")
	ErrNotSelected       = errors.New("session: port is not in the Selected state")
	ErrClosed            = errors.New("session: engine is closed")
)
