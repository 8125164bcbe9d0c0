package ports

// TransferStats is a raw sample of engine counters for one session.
type TransferStats struct {
	BytesReadData      int64
	FileBytesCompleted []int64
}

// Session is one torrent accepted by the engine. Piece ranges are inclusive.
type Session interface {
	Deselect(startPiece, endPiece int)
	Select(startPiece, endPiece int)
	Stats() TransferStats
	NewReader(fileIndex int) (StreamReader, error)
	StoragePath() string
	Close() error
}
