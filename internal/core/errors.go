// Package core defines sentinel errors.
package core

import "errors"

var (
	// Capture errors
	ErrAbort = errors.New("nfcsniff: capture aborted")

	// Session errors
	ErrSessionRunning  = errors.New("nfcsniff: session already running")
	ErrFrontEndFailure = errors.New("nfcsniff: rf front-end failure")

	// Output errors
	ErrBufferFull      = errors.New("nfcsniff: output buffer full")
	ErrEncoderNotFound = errors.New("nfcsniff: encoder not found")
	ErrEncoderClosed   = errors.New("nfcsniff: encoder closed")

	// Storage errors
	ErrStorageUnavailable = errors.New("nfcsniff: storage unavailable")
	ErrNoFreeFileName     = errors.New("nfcsniff: no free file name")
	ErrNoData             = errors.New("nfcsniff: nothing captured")

	// Configuration errors
	ErrConfigInvalid = errors.New("nfcsniff: invalid configuration")
)
