package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidKey      = errors.New("invalid key")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidDuration = errors.New("invalid duration")
)
