package domain

import (
	"errors"
	"fmt"
)

type CommandType string

const (
	CommandParse   CommandType = "parse"
	CommandStart   CommandType = "start"
	CommandDestroy CommandType = "destroy"
)

// Command is a control-side request. A nil Blob on a parse command means
// "reuse the descriptor already stored".
type Command struct {
	Type      CommandType `json:"type"`
	ID        TorrentID   `json:"id"`
	Blob      []byte      `json:"blob,omitempty"`
	FileIndex int         `json:"fileIndex,omitempty"`
}

var ErrInvalidCommand = errors.New("invalid command")

func (c Command) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: torrent id is required", ErrInvalidCommand)
	}
	switch c.Type {
	case CommandParse, CommandStart, CommandDestroy:
		return nil
	case "":
		return fmt.Errorf("%w: type is required", ErrInvalidCommand)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Type)
	}
}
