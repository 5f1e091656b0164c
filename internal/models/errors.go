package models

import "errors"

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrGuestNotFound        = errors.New("guest not found")
	ErrInvalidTemplateInput = errors.New("invalid template input")
	ErrInvalidTier          = errors.New("invalid package tier")
	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrDuplicatePhone       = errors.New("phone already invited for this event")
)
