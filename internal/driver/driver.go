// Package driver implements the per-connection protocol adapter: one
// Driver services one client's persistent full-duplex connection, bridging
// it to a session.Session obtained from the registry on the client's
// behalf (spec.md §4.D).
//
// Grounded on the teacher's pkg/server/connection.go (Connection,
// sendInitial, handleMessage, broadcastUpdates, send/sendMu), restructured
// from the teacher's single poll loop (revision-check + timed read in one
// goroutine) into the two genuinely concurrent reader/writer tasks
// spec.md §4.D and §9 call for, with an explicit echo-ordering gate
// between them.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/quillboard/quillboard/internal/protocol"
	"github.com/quillboard/quillboard/internal/registry"
	"github.com/quillboard/quillboard/internal/session"
)

// ErrClosed is returned by a pending operation when the driver tears down
// before that operation could complete.
var ErrClosed = errors.New("driver: closed")

// Config carries the per-connection timeouts, the same knobs the
// teacher's cmd/server/main.go Config struct exposes as
// WSReadTimeout/WSWriteTimeout.
type Config struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Driver services one client connection for the document referenced by
// handle. Callers construct one per accepted WebSocket and call Run.
type Driver struct {
	handle *registry.Handle
	conn   *websocket.Conn
	cfg    Config

	participantID uint64

	sendMu sync.Mutex

	mu               sync.Mutex
	cond             *sync.Cond
	lastSentRevision int
	closed           bool

	// Diff state, touched only by the writer goroutine.
	knownRoster   map[uint64]protocol.UserInfo
	knownCursors  map[uint64]protocol.CursorData
	knownLanguage string
}

// New creates a driver for an already-upgraded WebSocket connection and an
// already-leased registry handle. The driver takes ownership of handle and
// releases it on teardown.
func New(handle *registry.Handle, conn *websocket.Conn, cfg Config) *Driver {
	d := &Driver{handle: handle, conn: conn, cfg: cfg}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Run drives the connection to completion: handshake, then reader and
// writer tasks until disconnect or a session-layer error, then teardown.
// resumeRevision is the revision the client claims to have already seen
// (0 for a fresh client), taken from the connection URL per spec.md §4.D.
func (d *Driver) Run(ctx context.Context, resumeRevision int) error {
	defer d.teardown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snap := d.handle.Attach("", 0)
	d.participantID = snap.ParticipantID

	if err := d.sendInitial(ctx, resumeRevision, snap); err != nil {
		return fmt.Errorf("driver: handshake: %w", err)
	}

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		d.closed = true
		d.cond.Broadcast()
		d.mu.Unlock()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		d.writeLoop(ctx)
	}()

	err := d.readLoop(ctx)
	cancel()
	<-writerDone
	return err
}

func (d *Driver) teardown() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	_ = d.handle.Detach(d.participantID)
	d.handle.Release()
}

// sendInitial implements the handshake step of spec.md §4.D: Identity,
// then the backlog from resumeRevision (or 0), then language, then the
// roster of every other participant and their cursors.
func (d *Driver) sendInitial(ctx context.Context, resumeRevision int, snap session.Snapshot) error {
	if err := d.sendServerMsg(ctx, protocol.NewIdentityMsg(snap.ParticipantID)); err != nil {
		return err
	}

	start := resumeRevision
	if start < 0 {
		start = 0
	}
	hist := d.handle.GetHistory(start)
	if err := d.sendServerMsg(ctx, protocol.NewHistoryMsg(start, historyToWire(hist))); err != nil {
		return err
	}
	d.markSent(start + len(hist))

	d.knownLanguage = snap.Language
	if err := d.sendServerMsg(ctx, protocol.NewLanguageMsg(snap.Language)); err != nil {
		return err
	}

	d.knownRoster = make(map[uint64]protocol.UserInfo, len(snap.Participants))
	d.knownCursors = make(map[uint64]protocol.CursorData, len(snap.Participants))
	for id, p := range snap.Participants {
		info := protocol.UserInfo{Name: p.Name, Hue: p.Hue}
		d.knownRoster[id] = info
		if err := d.sendServerMsg(ctx, protocol.NewUserInfoMsg(id, &info)); err != nil {
			return err
		}
		if len(p.Cursor.Cursors) == 0 && len(p.Cursor.Selections) == 0 {
			continue
		}
		cd := protocol.CursorData{Cursors: p.Cursor.Cursors, Selections: p.Cursor.Selections}
		d.knownCursors[id] = cd
		if err := d.sendServerMsg(ctx, protocol.NewUserCursorMsg(id, cd)); err != nil {
			return err
		}
	}
	return nil
}

func historyToWire(hist []session.HistoryEntry) []protocol.UserOperation {
	ops := make([]protocol.UserOperation, len(hist))
	for i, e := range hist {
		ops[i] = protocol.UserOperation{ID: e.Operation.ID, Operation: e.Operation.Operation}
	}
	return ops
}

func (d *Driver) sendServerMsg(ctx context.Context, msg *protocol.ServerMsg) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, d.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, d.conn, msg)
}

// markSent records that the client has now been sent every operation up
// to (but not including) revision rev, and wakes any reader blocked in
// waitForEcho.
func (d *Driver) markSent(rev int) {
	d.mu.Lock()
	if rev > d.lastSentRevision {
		d.lastSentRevision = rev
	}
	d.cond.Broadcast()
	d.mu.Unlock()
}

// waitForEcho blocks until the writer has flushed history through
// revision rev (exclusive), enforcing spec.md §4.D's ordering guarantee:
// the client must see its own operation echoed before the session accepts
// its next submission.
func (d *Driver) waitForEcho(rev int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.lastSentRevision < rev {
		if d.closed {
			return ErrClosed
		}
		d.cond.Wait()
	}
	return nil
}
