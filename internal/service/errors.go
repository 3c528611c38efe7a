package service

import "errors"

var (
	// ErrNotFound means the message or conversation is absent from every
	// layer. Readers treat it as an empty result.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned for unauthorized delete/restore
	// attempts. No mutation happens.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDeleted is returned when restoring a message that carries no
	// tombstone.
	ErrNotDeleted = errors.New("message is not deleted")

	// ErrInvalidConversation means the request names neither a private
	// counterpart nor a group, or both.
	ErrInvalidConversation = errors.New("invalid conversation target")
)
