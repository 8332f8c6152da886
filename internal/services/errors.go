package services

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNoTranscript = errors.New("no transcript upload for case")
	ErrInvalidInput = errors.New("invalid input")
	ErrTooLarge     = errors.New("upload too large")
)
