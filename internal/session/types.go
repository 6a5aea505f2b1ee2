// Package session implements the per-document state machine: the
// authoritative operation log, participant roster, language tag, and the
// broadcast discipline that keeps every attached driver in sync.
package session

import (
	"github.com/quillboard/quillboard/internal/ot"
	"github.com/quillboard/quillboard/internal/protocol"
)

// CursorData holds zero or more caret positions and zero or more
// (anchor, head) selection ranges, measured in UTF-16 code units at the
// revision the reporting participant last observed.
type CursorData struct {
	Cursors    []int
	Selections [][2]int
}

// Participant is a connected client's presence record within a session.
type Participant struct {
	ID   uint64
	Name string
	Hue  uint32
	Cursor CursorData

	// lastObserved is the highest revision this participant is known to
	// have seen, used only to gate Compact (see compact.go). It is not
	// part of the public snapshot contract; callers read the exported
	// fields above.
	lastObserved int
}

// UserOperation pairs an accepted operation with the participant id that
// submitted it, as stored in the session log.
type UserOperation struct {
	ID        uint64
	Operation *ot.OperationSeq
}

// Snapshot is everything attach() hands back so a fresh driver can
// bootstrap a client: the assigned id plus enough state to render the
// document and its current collaborators.
type Snapshot struct {
	ParticipantID uint64
	Text          string
	Revision      int
	Language      string
	Participants  map[uint64]Participant
}

// systemUserID tags the synthetic operation Compact (and archive seeding)
// inserts on behalf of the server rather than any connected participant.
const systemUserID = protocol.SystemUserID
