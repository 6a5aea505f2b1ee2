package driver

import (
	"context"
	"fmt"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/quillboard/quillboard/internal/protocol"
	"github.com/quillboard/quillboard/internal/session"
)

// readLoop decodes inbound frames and dispatches each to the session in
// turn. Any session-layer error closes the connection, per spec.md §7:
// operational faults are never papered over.
func (d *Driver) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		readCtx, cancel := context.WithTimeout(ctx, d.cfg.ReadTimeout)
		var msg protocol.ClientMsg
		err := wsjson.Read(readCtx, d.conn, &msg)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("driver: read: %w", err)
		}

		if err := d.dispatch(&msg); err != nil {
			return err
		}
	}
}

// dispatch applies one decoded client frame to the session (spec.md
// §4.D step 2, Reader).
func (d *Driver) dispatch(msg *protocol.ClientMsg) error {
	switch {
	case msg.Edit != nil:
		revision, err := d.handle.Submit(d.participantID, msg.Edit.Revision, msg.Edit.Operation)
		if err != nil {
			return fmt.Errorf("driver: edit: %w", err)
		}
		// The client must see its own op echoed before we accept the
		// next frame; the writer sends history up through revision+1
		// once it observes this submission.
		if err := d.waitForEcho(revision + 1); err != nil {
			return fmt.Errorf("driver: waiting for echo: %w", err)
		}

	case msg.SetLanguage != nil:
		d.handle.SetLanguage(*msg.SetLanguage)

	case msg.ClientInfo != nil:
		if err := d.handle.SetInfo(d.participantID, msg.ClientInfo.Name, msg.ClientInfo.Hue); err != nil {
			return fmt.Errorf("driver: set info: %w", err)
		}

	case msg.CursorData != nil:
		data := session.CursorData{Cursors: msg.CursorData.Cursors, Selections: msg.CursorData.Selections}
		if err := d.handle.UpdateCursor(d.participantID, data, d.handle.CurrentRevision()); err != nil {
			return fmt.Errorf("driver: update cursor: %w", err)
		}
	}
	return nil
}

// writeLoop blocks on the session's notifier and, on each wake, re-diffs
// local state against the session's current state and emits whatever
// changed (spec.md §4.D step 2, Writer; §4.B "Broadcast discipline").
func (d *Driver) writeLoop(ctx context.Context) {
	lastRevision := d.lastSentRevisionSnapshot()

	for {
		notify := d.handle.Subscribe()
		select {
		case <-ctx.Done():
			return
		case <-notify:
		}

		if err := d.flush(ctx, &lastRevision); err != nil {
			return
		}
	}
}

func (d *Driver) lastSentRevisionSnapshot() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSentRevision
}

// flush sends every delta since the writer's last observation: new log
// entries, language changes, roster changes for every participant
// (including the driver's own), and cursor changes for everyone but the
// driver's own participant.
func (d *Driver) flush(ctx context.Context, lastRevision *int) error {
	if current := d.handle.CurrentRevision(); current > *lastRevision {
		hist := d.handle.GetHistory(*lastRevision)
		if err := d.sendServerMsg(ctx, protocol.NewHistoryMsg(*lastRevision, historyToWire(hist))); err != nil {
			return err
		}
		*lastRevision = current
		d.markSent(current)
	}

	if lang := d.handle.Language(); lang != d.knownLanguage {
		if err := d.sendServerMsg(ctx, protocol.NewLanguageMsg(lang)); err != nil {
			return err
		}
		d.knownLanguage = lang
	}

	roster := d.handle.Roster()

	for id, p := range roster {
		info := protocol.UserInfo{Name: p.Name, Hue: p.Hue}
		if known, ok := d.knownRoster[id]; !ok || known != info {
			if err := d.sendServerMsg(ctx, protocol.NewUserInfoMsg(id, &info)); err != nil {
				return err
			}
			d.knownRoster[id] = info
		}
	}
	for id := range d.knownRoster {
		if _, ok := roster[id]; !ok {
			if err := d.sendServerMsg(ctx, protocol.NewUserInfoMsg(id, nil)); err != nil {
				return err
			}
			delete(d.knownRoster, id)
			delete(d.knownCursors, id)
		}
	}

	for id, p := range roster {
		if id == d.participantID {
			continue // cursor deltas for participants other than itself only
		}
		cd := protocol.CursorData{Cursors: p.Cursor.Cursors, Selections: p.Cursor.Selections}
		if !cursorDataEqual(d.knownCursors[id], cd) {
			if err := d.sendServerMsg(ctx, protocol.NewUserCursorMsg(id, cd)); err != nil {
				return err
			}
			d.knownCursors[id] = cd
		}
	}

	return nil
}

func cursorDataEqual(a, b protocol.CursorData) bool {
	if len(a.Cursors) != len(b.Cursors) || len(a.Selections) != len(b.Selections) {
		return false
	}
	for i := range a.Cursors {
		if a.Cursors[i] != b.Cursors[i] {
			return false
		}
	}
	for i := range a.Selections {
		if a.Selections[i] != b.Selections[i] {
			return false
		}
	}
	return true
}
