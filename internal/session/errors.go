package session

import "errors"

var (
	// ErrAuthRequired indicates an action needs a known viewer identity and
	// none is present.
	ErrAuthRequired = errors.New("session: viewer identity required")
	// ErrNotOwner indicates the requester does not match the record's author.
	ErrNotOwner = errors.New("session: requester is not the record author")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("session: record not found")
)
