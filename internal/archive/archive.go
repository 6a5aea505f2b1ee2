// Package archive is the SQLite persistence collaborator: it satisfies
// internal/registry's Loader/Saver hooks for bootstrap/eviction, and
// separately runs a periodic persister per live document so long-running
// sessions survive a crash without waiting for their last reference to
// drop (spec.md §4.C; SPEC_FULL.md §4.C).
//
// Grounded on the teacher's pkg/database (Database, PersistedDocument,
// embedded migrations) and pkg/server.go's persister goroutine, kept on
// the teacher's storage driver, github.com/mattn/go-sqlite3.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillboard/quillboard/internal/logging"
	"github.com/quillboard/quillboard/internal/session"
)

// Archive wraps a SQLite connection holding one row per document.
type Archive struct {
	db *sql.DB
}

// New opens (creating if necessary) the SQLite database at uri and
// applies any pending migrations.
func New(uri string) (*Archive, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Load implements internal/registry.Loader.
func (a *Archive) Load(documentID string) (text, language string, found bool, err error) {
	var lang sql.NullString
	err = a.db.QueryRow("SELECT text, language FROM document WHERE id = ?", documentID).Scan(&text, &lang)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("archive: load %s: %w", documentID, err)
	}
	if lang.Valid {
		language = lang.String
	}
	return text, language, true, nil
}

// Save implements internal/registry.Saver.
func (a *Archive) Save(documentID, text, language string) error {
	_, err := a.db.Exec(`
		INSERT INTO document (id, text, language, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			language = excluded.language,
			updated_at = excluded.updated_at
	`, documentID, text, language, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("archive: save %s: %w", documentID, err)
	}
	return nil
}

// Count returns the number of rows in the document table, for the
// /api/stats HTTP handler.
func (a *Archive) Count() (int, error) {
	var count int
	if err := a.db.QueryRow("SELECT COUNT(*) FROM document").Scan(&count); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return count, nil
}

// PersistInterval is the production tick passed to Persist; a shorter
// interval is useful in tests.
const PersistInterval = 3 * time.Second

// persistJitter caps the random delay added to each tick, to avoid a
// thundering herd of documents persisting in lockstep.
const persistJitter = 1 * time.Second

// Persist periodically snapshots a live session to disk until ctx is
// cancelled, saving only when the revision has advanced since the last
// write. Grounded on the teacher's Server.persister goroutine;
// internal/httpapi starts one per document and cancels it on Shutdown.
func (a *Archive) Persist(ctx context.Context, documentID string, sess *session.Session, interval time.Duration) {
	lastRevision := 0
	for {
		jitter := persistJitter
		if interval < jitter {
			jitter = interval
		}
		wait := interval
		if jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(jitter)))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		revision := sess.CurrentRevision()
		if revision <= lastRevision {
			continue
		}

		if err := a.Save(documentID, sess.Text(), sess.Language()); err != nil {
			logging.Error("persist failed", err, map[string]interface{}{"document_id": documentID})
			continue
		}
		lastRevision = revision
	}
}
