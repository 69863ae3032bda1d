package alloc

import "errors"

var (
	ErrExhausted        = errors.New("alloc: arena budget exhausted")
	ErrRequestTooLarge  = errors.New("alloc: request exceeds block capacity")
	ErrResetInFlight    = errors.New("alloc: reset requested while workers hold arenas")
	ErrInvalidBlockSize = errors.New("alloc: block capacity must be positive")
)
