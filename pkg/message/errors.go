package message

import "errors"

// ErrProtocolViolation is wrapped by frame-level validation failures:
// a declared length that disagrees with the buffer, an out-of-range
// body length, or a non-DataMessage frame carrying a payload.
var ErrProtocolViolation = errors.New("message: protocol violation")
