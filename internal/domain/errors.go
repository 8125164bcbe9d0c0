package domain

import "errors"

var (
	ErrNotFound   = errors.New("torrent not found")
	ErrParse      = errors.New("torrent parse error")
	ErrFileIndex  = errors.New("file index out of range")
	ErrServerBind = errors.New("stream server bind error")
	ErrFsCleanup  = errors.New("storage cleanup error")
	ErrEngine     = errors.New("engine error")
	ErrClosed     = errors.New("manager closed")
)
