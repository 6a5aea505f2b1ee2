package session

import (
	"errors"
	"testing"

	"github.com/quillboard/quillboard/internal/ot"
	"github.com/stretchr/testify/require"
)

func op(parts ...interface{}) *ot.OperationSeq {
	o := ot.New()
	for _, p := range parts {
		switch v := p.(type) {
		case int:
			if v >= 0 {
				o.Retain(v)
			} else {
				o.Delete(-v)
			}
		case string:
			o.Insert(v)
		}
	}
	return o
}

func TestAttachReturnsInitialSnapshot(t *testing.T) {
	s := New("plaintext", 0)
	snap := s.Attach("alice", 120)

	require.Equal(t, uint64(0), snap.ParticipantID)
	require.Equal(t, "", snap.Text)
	require.Equal(t, 0, snap.Revision)
	require.Equal(t, "plaintext", snap.Language)
	require.Empty(t, snap.Participants)

	other := s.Attach("bob", 200)
	require.Equal(t, uint64(1), other.ParticipantID)
	require.Len(t, other.Participants, 1)
	require.Equal(t, "alice", other.Participants[0].Name)
}

// S1 — basic insert.
func TestSubmitBasicInsert(t *testing.T) {
	s := New("plaintext", 0)
	snap := s.Attach("alice", 0)

	rev, err := s.Submit(snap.ParticipantID, 0, op("hello"))
	require.NoError(t, err)
	require.Equal(t, 0, rev)
	require.Equal(t, "hello", s.Text())
	require.Equal(t, 1, s.CurrentRevision())

	hist := s.GetHistory(0)
	require.Len(t, hist, 1)
	require.Equal(t, 0, hist[0].Revision)
	require.Equal(t, snap.ParticipantID, hist[0].Operation.ID)
}

// S2 — concurrent inserts at offset 0; history-first tie-break.
func TestSubmitConcurrentInsertsRebase(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)
	b := s.Attach("b", 0)

	_, err := s.Submit(a.ParticipantID, 0, op("X"))
	require.NoError(t, err)

	// B submitted against revision 0, unaware of A's accepted op.
	rev, err := s.Submit(b.ParticipantID, 0, op("Y"))
	require.NoError(t, err)
	require.Equal(t, 1, rev)
	require.Equal(t, "XY", s.Text())
}

// S3 — insert vs. delete of the same region.
func TestSubmitInsertVsDeleteSameRegion(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)
	b := s.Attach("b", 0)

	_, err := s.Submit(a.ParticipantID, 0, op("abcdef"))
	require.NoError(t, err)
	base := s.CurrentRevision()

	_, err = s.Submit(a.ParticipantID, base, op(3, -3))
	require.NoError(t, err)
	require.Equal(t, "abc", s.Text())

	rev, err := s.Submit(b.ParticipantID, base, op(3, "X", 3))
	require.NoError(t, err)
	require.Equal(t, base+1, rev)
	require.Equal(t, "abcX", s.Text())
}

func TestSubmitRevisionAheadRejected(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)

	_, err := s.Submit(a.ParticipantID, 5, op("x"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRevisionAhead))
}

func TestSubmitUnknownParticipantRejected(t *testing.T) {
	s := New("plaintext", 0)
	_, err := s.Submit(999, 0, op("x"))
	require.True(t, errors.Is(err, ErrUnknownParticipant))
}

func TestSubmitRejectsOversizedDocument(t *testing.T) {
	s := New("plaintext", 3)
	a := s.Attach("a", 0)

	_, err := s.Submit(a.ParticipantID, 0, op("hello"))
	require.True(t, errors.Is(err, ErrInvalidOperation))
	require.Equal(t, "", s.Text())
}

func TestDetachUnknownParticipant(t *testing.T) {
	s := New("plaintext", 0)
	err := s.Detach(42)
	require.True(t, errors.Is(err, ErrUnknownParticipant))
}

func TestDetachRemovesFromRoster(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)
	require.NoError(t, s.Detach(a.ParticipantID))
	require.Empty(t, s.Roster())
}

// Property 7 — monotonic revisions.
func TestMonotonicRevisions(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)

	prev := -1
	for i := 0; i < 5; i++ {
		rev, err := s.Submit(a.ParticipantID, s.CurrentRevision(), op("x"))
		require.NoError(t, err)
		require.Equal(t, prev+1, rev)
		prev = rev
	}
}

// Property 8 — log-text consistency.
func TestLogTextConsistency(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)

	_, err := s.Submit(a.ParticipantID, 0, op("hello "))
	require.NoError(t, err)
	_, err = s.Submit(a.ParticipantID, s.CurrentRevision(), op(6, "world"))
	require.NoError(t, err)

	folded := ""
	for _, entry := range s.GetHistory(0) {
		var applyErr error
		folded, applyErr = ot.Apply(entry.Operation.Operation, folded)
		require.NoError(t, applyErr)
	}
	require.Equal(t, s.Text(), folded)
}

// Property 9 / S5 — cursor convergence after all in-flight ops are acked.
func TestCursorConvergenceAfterSubmit(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)
	b := s.Attach("b", 0)

	_, err := s.Submit(a.ParticipantID, 0, op("hello world"))
	require.NoError(t, err)
	rev := s.CurrentRevision()

	require.NoError(t, s.UpdateCursor(a.ParticipantID, CursorData{Cursors: []int{5}}, rev))

	// B inserts "!!" at position 0, shifting every later cursor right by 2.
	_, err = s.Submit(b.ParticipantID, rev, op("!!", 11))
	require.NoError(t, err)

	roster := s.Roster()
	require.Equal(t, []int{7}, roster[a.ParticipantID].Cursor.Cursors)
}

func TestCompactionRefusesWhenParticipantBehind(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)
	b := s.Attach("b", 0)

	_, err := s.Submit(a.ParticipantID, 0, op("hello"))
	require.NoError(t, err)
	_, err = s.Submit(a.ParticipantID, s.CurrentRevision(), op(5, " world"))
	require.NoError(t, err)

	// b attached at revision 0 and never observed a later revision via
	// UpdateCursor/Submit.
	require.False(t, s.Compact())
	require.Equal(t, 2, s.CurrentRevision())
	_ = b
}

func TestCompactionPreservesTextAndRevisionNumbering(t *testing.T) {
	s := New("plaintext", 0)
	a := s.Attach("a", 0)

	_, err := s.Submit(a.ParticipantID, 0, op("hello"))
	require.NoError(t, err)
	_, err = s.Submit(a.ParticipantID, s.CurrentRevision(), op(5, " world"))
	require.NoError(t, err)

	revBefore := s.CurrentRevision()
	textBefore := s.Text()

	require.True(t, s.Compact())
	require.Equal(t, revBefore, s.CurrentRevision())
	require.Equal(t, textBefore, s.Text())

	// Further submission against the post-compaction revision still works.
	rev, err := s.Submit(a.ParticipantID, s.CurrentRevision(), op(11, "!"))
	require.NoError(t, err)
	require.Equal(t, revBefore, rev)
	require.Equal(t, "hello world!", s.Text())
}

func TestCompactionNoopOnEmptySession(t *testing.T) {
	s := New("plaintext", 0)
	require.False(t, s.Compact())
}
