package apihttp

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"torrentplay/internal/domain"
)

type torrentResponse struct {
	*domain.Descriptor
	State domain.State `json:"state"`
}

type acceptedResponse struct {
	ID   domain.TorrentID   `json:"id"`
	Type domain.CommandType `json:"type"`
}

// torrentPath splits /torrents/{id} and /torrents/{id}/{action}.
func torrentPath(path string) (domain.TorrentID, string, bool) {
	rest, ok := strings.CutPrefix(path, "/torrents/")
	if !ok {
		return "", "", false
	}
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		return "", "", false
	}
	return domain.TorrentID(id), action, true
}

func (s *Server) handleTorrentByID(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "torrent manager not configured")
		return
	}
	id, action, ok := torrentPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if action == "" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetTorrent(w, r, id)
		case http.MethodDelete:
			s.submit(w, r, domain.Command{Type: domain.CommandDestroy, ID: id})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch action {
	case "parse":
		s.handleParseTorrent(w, r, id)
	case "start":
		fileIndex, err := parseFileIndex(r.URL.Query().Get("fileIndex"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid fileIndex")
			return
		}
		s.submit(w, r, domain.Command{Type: domain.CommandStart, ID: id, FileIndex: fileIndex})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleParseTorrent(w http.ResponseWriter, r *http.Request, id domain.TorrentID) {
	body := http.MaxBytesReader(w, r.Body, s.maxTorrentSize)
	blob, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "torrent file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return
	}
	if len(blob) == 0 {
		blob = nil
	}
	s.submit(w, r, domain.Command{Type: domain.CommandParse, ID: id, Blob: blob})
}

func (s *Server) handleGetTorrent(w http.ResponseWriter, r *http.Request, id domain.TorrentID) {
	desc, err := s.gateway.Descriptor(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	state, err := s.gateway.State(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, torrentResponse{Descriptor: desc, State: state})
}

// submit hands cmd to the manager. The outcome arrives as events, so a
// successful submission only means the command was queued.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, cmd domain.Command) {
	if err := s.gateway.Submit(r.Context(), cmd); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: cmd.ID, Type: cmd.Type})
}
