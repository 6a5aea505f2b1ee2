package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/quillboard/quillboard/internal/driver"
	"github.com/quillboard/quillboard/internal/logging"
	"github.com/quillboard/quillboard/internal/registry"
)

// handleSocket upgrades the connection and runs a driver for the
// requested document for the lifetime of the connection. Grounded on
// the teacher's handleSocket (pkg/server/server.go).
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	if docID == "" {
		http.Error(w, "document id required", http.StatusBadRequest)
		return
	}

	handle := s.registry.GetOrCreate(docID)
	s.startPersisterOnce(docID, handle)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{CompressionMode: websocket.CompressionDisabled})
	if err != nil {
		handle.Release()
		logging.Error("websocket upgrade failed", err, map[string]interface{}{"document_id": docID})
		return
	}

	resumeRevision := 0
	if v := r.URL.Query().Get("resume_revision"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			resumeRevision = n
		}
	}

	d := driver.New(handle, conn, s.driverConfig())
	if err := d.Run(r.Context(), resumeRevision); err != nil {
		logging.Debug("driver exited", map[string]interface{}{"document_id": docID, "error": err.Error()})
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

// startPersisterOnce launches the archive's background persister for a
// document the first time it's seen, and lets it run until the process
// shuts down — grounded on the teacher's "start persister if database
// is enabled" check in handleSocket, generalized to run once per
// document rather than once per connection.
func (s *Server) startPersisterOnce(docID string, handle *registry.Handle) {
	if s.archive == nil {
		return
	}

	s.persistingMu.Lock()
	defer s.persistingMu.Unlock()

	if _, ok := s.persisting[docID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.persisting[docID] = cancel

	go s.archive.Persist(ctx, docID, handle.Session, s.cfg.PersistInterval)
}

// handleText returns the current document text as plain text,
// preferring the live in-memory session and falling back to the
// archive when that session has no operations. Grounded on the
// teacher's handleText.
func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	if docID == "" {
		http.Error(w, "document id required", http.StatusBadRequest)
		return
	}

	handle := s.registry.GetOrCreate(docID)
	defer handle.Release()

	text := handle.Text()
	if handle.CurrentRevision() == 0 && s.archive != nil {
		if archived, _, found, err := s.archive.Load(docID); err == nil && found {
			text = archived
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

// Stats is the response shape for /api/stats: live session count, total
// connected participants, and total bytes logged across live documents,
// per spec.md §6, plus the teacher's persisted-row DatabaseSize.
type Stats struct {
	StartTime         int64 `json:"start_time"`
	NumDocuments      int   `json:"num_documents"`
	TotalParticipants int   `json:"total_participants"`
	TotalBytesLogged  int   `json:"total_bytes_logged"`
	DatabaseSize      int   `json:"database_size"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	agg := s.registry.Stats()

	stats := Stats{
		StartTime:         s.startTime.Unix(),
		NumDocuments:      agg.NumDocuments,
		TotalParticipants: agg.TotalParticipants,
		TotalBytesLogged:  agg.TotalBytesLogged,
	}
	if s.archive != nil {
		if count, err := s.archive.Count(); err == nil {
			stats.DatabaseSize = count
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// mintResponse is the JSON body of POST /api/document.
type mintResponse struct {
	ID string `json:"id"`
}

// handleMintDocument returns a fresh, short random document id a client
// can open without picking its own (SPEC_FULL.md §6).
func (s *Server) handleMintDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mintResponse{ID: id})
}
