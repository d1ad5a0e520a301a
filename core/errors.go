package core

import "github.com/pingcap/errors"

// Table construction errors
var (
	ErrInvalidSize = errors.New("table needs at least one philosopher")
)

// Contract violations, rejected without touching the table state
var (
	ErrInvalidPhilosopher = errors.New("philosopher id out of range")
	ErrNotThinking        = errors.New("philosopher is already hungry or eating")
	ErrNotEating          = errors.New("philosopher is not eating")
)
