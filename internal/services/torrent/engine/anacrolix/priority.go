package anacrolix

import (
	"log/slog"
)

// pieceSpan converts an inclusive piece range into the half-open range the
// client expects, clamped to [0, numPieces).
func pieceSpan(startPiece, endPiece, numPieces int) (int, int, bool) {
	if numPieces <= 0 {
		return 0, 0, false
	}
	if startPiece < 0 {
		startPiece = 0
	}
	if endPiece >= numPieces {
		endPiece = numPieces - 1
	}
	if startPiece > endPiece {
		return 0, 0, false
	}
	return startPiece, endPiece + 1, true
}

func (s *Session) setPieces(startPiece, endPiece int, download bool) {
	t := s.live()
	if t == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("piece selection recovered from panic",
				slog.Any("panic", rec),
				slog.String("torrentId", string(s.id)),
			)
		}
	}()

	begin, end, ok := pieceSpan(startPiece, endPiece, t.NumPieces())
	if !ok {
		return
	}
	if download {
		t.DownloadPieces(begin, end)
		return
	}
	t.CancelPieces(begin, end)
}
