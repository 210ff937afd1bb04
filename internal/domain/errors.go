package domain

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrStreamNotFound   = errors.New("stream not found")
	ErrEventExists      = errors.New("event already registered")
	ErrInvalidEventName = errors.New("event name must not be empty")
	ErrInvalidInterval  = errors.New("poll interval out of range")
	ErrInvalidVideoID   = errors.New("invalid video id")
	ErrTitleNotFound    = errors.New("video title not found")
)
