package linking

import "errors"

var (
	// ErrStateNotFound means the state token was already consumed, expired,
	// or never issued. The user has to restart linking from the bot.
	ErrStateNotFound = errors.New("linking: state invalid or expired")

	// ErrNotLinked means the user has no Instagram account link on record.
	ErrNotLinked = errors.New("linking: account not linked")
)
