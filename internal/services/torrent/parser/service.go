package parser

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"torrentplay/internal/domain"
)

// Service decodes .torrent bytes into descriptors. It holds no state and is
// safe for concurrent use.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Parse decodes blob. A nil blob yields a nil descriptor and no error.
func (s *Service) Parse(id domain.TorrentID, blob []byte) (*domain.Descriptor, error) {
	if blob == nil {
		return nil, nil
	}
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrParse)
	}

	mi, err := metainfo.Load(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: info dictionary: %v", domain.ErrParse, err)
	}
	if info.PieceLength <= 0 {
		return nil, fmt.Errorf("%w: invalid piece length %d", domain.ErrParse, info.PieceLength)
	}
	numPieces := info.NumPieces()
	if numPieces <= 0 {
		return nil, fmt.Errorf("%w: torrent has no pieces", domain.ErrParse)
	}

	upverted := info.UpvertedFiles()
	if len(upverted) == 0 {
		return nil, fmt.Errorf("%w: torrent has no files", domain.ErrParse)
	}

	files := make([]domain.FileEntry, 0, len(upverted))
	var offset int64
	for i, fi := range upverted {
		if fi.Length < 0 {
			return nil, fmt.Errorf("%w: file %d has negative length", domain.ErrParse, i)
		}
		start, end := pieceRange(offset, fi.Length, info.PieceLength)
		files = append(files, domain.FileEntry{
			Index:      i,
			Name:       fileName(info.Name, fi.Path),
			Path:       filePath(info.Name, fi.Path),
			Length:     fi.Length,
			Offset:     offset,
			StartPiece: start,
			EndPiece:   end,
		})
		offset += fi.Length
	}
	if needed := (offset + info.PieceLength - 1) / info.PieceLength; needed > int64(numPieces) {
		return nil, fmt.Errorf("%w: %d bytes do not fit in %d pieces of %d", domain.ErrParse, offset, numPieces, info.PieceLength)
	}
	for i := range files {
		// A trailing empty file can sit exactly on the end boundary.
		if files[i].StartPiece >= numPieces {
			files[i].StartPiece = numPieces - 1
			files[i].EndPiece = numPieces - 1
		}
	}

	return &domain.Descriptor{
		ID:          id,
		InfoHash:    mi.HashInfoBytes().HexString(),
		Name:        info.Name,
		PieceLength: info.PieceLength,
		NumPieces:   numPieces,
		Length:      offset,
		Files:       files,
		Raw:         append([]byte(nil), blob...),
	}, nil
}

// pieceRange returns the inclusive piece range covering [offset, offset+length).
// Zero-length files map onto the piece their offset falls in.
func pieceRange(offset, length, pieceLength int64) (int, int) {
	start := int(offset / pieceLength)
	if length == 0 {
		return start, start
	}
	return start, int((offset + length - 1) / pieceLength)
}

func fileName(torrentName string, parts []string) string {
	if len(parts) == 0 {
		return torrentName
	}
	return parts[len(parts)-1]
}

func filePath(torrentName string, parts []string) string {
	if len(parts) == 0 {
		return torrentName
	}
	return path.Join(torrentName, strings.Join(parts, "/"))
}
