package model

import "errors"

var (
	ErrEmptyBatch  = errors.New("batch has no messages")
	ErrNoImageData = errors.New("no image payload in response")
)
