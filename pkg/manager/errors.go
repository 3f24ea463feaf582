package manager

import "errors"

var (
	ErrDuplicatePort    = errors.New("manager: duplicate port name")
	ErrDuplicateDefault = errors.New("manager: default port already set")
)
