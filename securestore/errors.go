package securestore

import "errors"

var (
	// ErrUnknownKey is returned for a key outside the fixed key set.
	ErrUnknownKey = errors.New("unknown secure store key")
	// ErrUnreadable indicates a stored value exists but could not be opened.
	ErrUnreadable = errors.New("secure store value unreadable")
	// ErrClosed is returned after Close has destroyed the data key.
	ErrClosed = errors.New("secure store closed")
)
