package domain

import "fmt"

// TorrentID is the key the control side uses to name a torrent across
// commands and events.
type TorrentID string

// Descriptor is parsed torrent metadata. It is immutable once stored in the
// registry and is replaced only by a fresh parse for the same identifier.
type Descriptor struct {
	ID          TorrentID   `json:"id"`
	InfoHash    string      `json:"infoHash"`
	Name        string      `json:"name"`
	PieceLength int64       `json:"pieceLength"`
	NumPieces   int         `json:"numPieces"`
	Length      int64       `json:"length"`
	Files       []FileEntry `json:"files"`
	Raw         []byte      `json:"-"`
}

// FileEntry is one file of a descriptor. StartPiece and EndPiece are
// inclusive.
type FileEntry struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Length     int64  `json:"length"`
	Offset     int64  `json:"offset"`
	StartPiece int    `json:"startPiece"`
	EndPiece   int    `json:"endPiece"`
}

// File returns the entry at index or ErrFileIndex.
func (d *Descriptor) File(index int) (FileEntry, error) {
	if d == nil || index < 0 || index >= len(d.Files) {
		count := 0
		if d != nil {
			count = len(d.Files)
		}
		return FileEntry{}, fmt.Errorf("%w: index %d, torrent has %d files", ErrFileIndex, index, count)
	}
	return d.Files[index], nil
}

// LastPiece is the index of the final piece, or -1 for an empty torrent.
func (d *Descriptor) LastPiece() int {
	if d == nil {
		return -1
	}
	return d.NumPieces - 1
}

// FileProgress is the runtime view of one file while a session is serving.
type FileProgress struct {
	Name       string  `json:"name"`
	Progress   float64 `json:"progress"`
	Downloaded int64   `json:"downloaded"`
}
