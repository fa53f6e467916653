package domain

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrNoStrategy = errors.New("strategy not registered")
)
