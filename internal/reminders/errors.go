package reminders

import "errors"

var (
	// ErrParseEmpty means the text held no date the parser understood.
	ErrParseEmpty = errors.New("reminders: no date found")
	// ErrCapacityExceeded means the chat already holds the maximum number of reminders.
	ErrCapacityExceeded = errors.New("reminders: capacity exceeded")
	// ErrInvalidDeletion means the delete request named no usable id.
	ErrInvalidDeletion = errors.New("reminders: invalid deletion request")
	ErrTimezoneParse   = errors.New("reminders: invalid utc offset")
	ErrDispatch        = errors.New("reminders: dispatch failed")
	ErrStore           = errors.New("reminders: store failure")
	// ErrRepeatExpired means the fired reminder is no longer known.
	ErrRepeatExpired  = errors.New("reminders: repeat window elapsed")
	ErrNothingPending = errors.New("reminders: nothing pending")
)
