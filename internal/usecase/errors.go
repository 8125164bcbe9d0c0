package usecase

import (
	"context"
	"errors"
	"fmt"

	"torrentplay/internal/domain"
)

func wrapEngine(err error) error {
	if err == nil || errors.Is(err, domain.ErrEngine) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrEngine, err)
}

func wrapBind(err error) error {
	if err == nil || errors.Is(err, domain.ErrServerBind) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrServerBind, err)
}

// messageKeyFor picks the user-facing message for a failed command.
func messageKeyFor(cmd domain.CommandType, err error) string {
	switch {
	case errors.Is(err, domain.ErrParse):
		return msgParseFailed
	case errors.Is(err, domain.ErrNotFound):
		return msgNotFound
	case errors.Is(err, domain.ErrFileIndex):
		return msgFileIndex
	case errors.Is(err, domain.ErrServerBind):
		return msgServerFailed
	}
	switch cmd {
	case domain.CommandParse:
		return msgParseFailed
	case domain.CommandDestroy:
		return msgDestroyFailed
	default:
		return msgInitFailed
	}
}
