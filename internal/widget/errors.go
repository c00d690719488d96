package widget

import "errors"

var (
	// ErrBusy is returned when a send or conversation switch is already in flight.
	ErrBusy = errors.New("widget: session busy")
	// ErrDispatch covers every failure of the backend round trip.
	ErrDispatch = errors.New("widget: dispatch failed")
	ErrUpload   = errors.New("widget: upload failed")
	ErrNotFound = errors.New("widget: not found")
	// ErrSessionClosed is returned by operations on a torn-down session.
	ErrSessionClosed = errors.New("widget: session closed")
)
