package accel

import "errors"

var (
	ErrCountMismatch = errors.New("accel: primitive count changed between the count and fill passes")
)
