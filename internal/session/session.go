package session

import (
	"fmt"
	"sync"

	"github.com/quillboard/quillboard/internal/ot"
)

// Session is the single synchronization point for one document: the
// append-only operation log indexed by revision, the participant roster,
// and the language tag. Grounded on the teacher's pkg/server/kolabpad.go
// Kolabpad/State pair, generalized per spec: participant info and cursor
// data live on one Participant record instead of two parallel maps, and
// the notify channel alone carries every kind of state-change signal
// (operations, roster, cursor, language) rather than pairing it with a
// separate per-subscriber ServerMsg broadcast channel.
type Session struct {
	mu sync.RWMutex

	log     []UserOperation
	logBase int // external revision number of log[0]; see compact.go
	text    string

	language     string
	participants map[uint64]*Participant
	nextID       uint64

	notify chan struct{}

	maxDocumentSize int // UTF-16 code units; 0 means unbounded
}

// New creates an empty session with the given language tag.
func New(language string, maxDocumentSize int) *Session {
	return &Session{
		participants:    make(map[uint64]*Participant),
		language:        language,
		notify:          make(chan struct{}),
		maxDocumentSize: maxDocumentSize,
	}
}

// NewFromText seeds a session with previously archived text, as a single
// synthetic system operation at revision 0. Used by the registry's
// bootstrap hook (internal/registry) when reopening a document.
func NewFromText(text, language string, maxDocumentSize int) *Session {
	s := New(language, maxDocumentSize)
	if text == "" {
		return s
	}
	op := ot.New()
	op.Insert(text)
	s.log = []UserOperation{{ID: systemUserID, Operation: op}}
	s.text = text
	return s
}

// CurrentRevision returns the size of the log (spec §4.B).
func (s *Session) CurrentRevision() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRevisionLocked()
}

func (s *Session) currentRevisionLocked() int {
	return s.logBase + len(s.log)
}

// Text materializes the current document text. The log remains the
// source of truth; this reads the cached fold maintained by Submit.
func (s *Session) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Language returns the document's current language tag.
func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// Subscribe returns the session's current notify channel. It closes
// whenever any tracked state advances (new operation, participant change,
// cursor change, language change); callers must call Subscribe again
// after it closes to obtain the next one, then re-diff their own view
// against the session's current state rather than expect individual
// events on this channel.
func (s *Session) Subscribe() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notify
}

// signal wakes every Subscribe()'d waiter by closing and replacing the
// notify channel. Callers must hold s.mu for writing.
func (s *Session) signal() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// Attach registers a new participant and returns enough state for the
// caller to bootstrap a client: the assigned id, current text, revision,
// language tag, and the roster of every other participant.
func (s *Session) Attach(name string, hue uint32) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	s.participants[id] = &Participant{
		ID:           id,
		Name:         name,
		Hue:          hue,
		lastObserved: s.currentRevisionLocked(),
	}

	others := make(map[uint64]Participant, len(s.participants)-1)
	for pid, p := range s.participants {
		if pid == id {
			continue
		}
		others[pid] = *p
	}

	snap := Snapshot{
		ParticipantID: id,
		Text:          s.text,
		Revision:      s.currentRevisionLocked(),
		Language:      s.language,
		Participants:  others,
	}

	s.signal()
	return snap
}

// Detach removes a participant and notifies the rest of the session.
func (s *Session) Detach(participantID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[participantID]; !ok {
		return fmt.Errorf("detach: %w", ErrUnknownParticipant)
	}
	delete(s.participants, participantID)
	s.signal()
	return nil
}

// HistoryEntry pairs a logged operation with the external revision number
// it was committed at (logBase-adjusted, so callers never need to know
// about compaction).
type HistoryEntry struct {
	Revision  int
	Operation UserOperation
}

// GetHistory returns every operation committed at or after start.
func (s *Session) GetHistory(start int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset := start - s.logBase
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.log) {
		return []HistoryEntry{}
	}

	entries := make([]HistoryEntry, 0, len(s.log)-offset)
	for i := offset; i < len(s.log); i++ {
		entries = append(entries, HistoryEntry{
			Revision:  s.logBase + i,
			Operation: s.log[i],
		})
	}
	return entries
}

// Roster returns a snapshot copy of every connected participant.
func (s *Session) Roster() map[uint64]Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uint64]Participant, len(s.participants))
	for id, p := range s.participants {
		out[id] = *p
	}
	return out
}

// Submit runs the OT submission algorithm from spec §4.B: rebase op
// against every operation the participant missed since parentRevision,
// verify the rebased op's base_len against the current text, append it to
// the log, and signal subscribers. Returns the revision it was committed
// at.
func (s *Session) Submit(participantID uint64, parentRevision int, op *ot.OperationSeq) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[participantID]
	if !ok {
		return 0, fmt.Errorf("submit: %w", ErrUnknownParticipant)
	}

	current := s.currentRevisionLocked()
	if parentRevision > current {
		return 0, fmt.Errorf("submit: parent revision %d exceeds current %d: %w", parentRevision, current, ErrRevisionAhead)
	}

	missedStart := parentRevision - s.logBase
	if missedStart < 0 {
		missedStart = 0
	}

	transformed := op
	for _, missed := range s.log[missedStart:] {
		_, bPrime, err := ot.Transform(missed.Operation, transformed)
		if err != nil {
			return 0, fmt.Errorf("submit: rebase against revision: %w: %v", ErrInvalidOperation, err)
		}
		transformed = bPrime
	}

	if transformed.BaseLen() != ot.UTF16Len(s.text) {
		return 0, fmt.Errorf("submit: rebased base_len %d does not match document length %d: %w",
			transformed.BaseLen(), ot.UTF16Len(s.text), ErrInvalidOperation)
	}

	if s.maxDocumentSize > 0 && transformed.TargetLen() > s.maxDocumentSize {
		return 0, fmt.Errorf("submit: target length %d exceeds maximum %d: %w", transformed.TargetLen(), s.maxDocumentSize, ErrInvalidOperation)
	}

	newText, err := ot.Apply(transformed, s.text)
	if err != nil {
		return 0, fmt.Errorf("submit: %w: %v", ErrInvalidOperation, err)
	}

	for _, p := range s.participants {
		p.Cursor.Cursors = transformCursors(p.Cursor.Cursors, transformed)
		p.Cursor.Selections = transformSelections(p.Cursor.Selections, transformed)
	}

	revision := current
	s.log = append(s.log, UserOperation{ID: participantID, Operation: transformed})
	s.text = newText
	participant.lastObserved = s.currentRevisionLocked()

	s.signal()
	return revision, nil
}

func transformCursors(in []int, op *ot.OperationSeq) []int {
	if len(in) == 0 {
		return in
	}
	out := make([]int, len(in))
	for i, c := range in {
		out[i] = ot.TransformCursor(c, op)
	}
	return out
}

func transformSelections(in [][2]int, op *ot.OperationSeq) [][2]int {
	if len(in) == 0 {
		return in
	}
	out := make([][2]int, len(in))
	for i, sel := range in {
		a, h := ot.TransformSelection(sel[0], sel[1], op)
		out[i] = [2]int{a, h}
	}
	return out
}

// UpdateCursor records a participant's cursor/selection state as observed
// at atRevision, and bumps the participant's observed-revision floor
// forward (never backward) to atRevision — this is what lets Compact
// decide it's safe to collapse history.
func (s *Session) UpdateCursor(participantID uint64, data CursorData, atRevision int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return fmt.Errorf("update cursor: %w", ErrUnknownParticipant)
	}
	p.Cursor = data
	if atRevision > p.lastObserved {
		p.lastObserved = atRevision
	}
	s.signal()
	return nil
}

// SetLanguage changes the document's language tag. Non-OT metadata: it
// does not touch the log or revision counter.
func (s *Session) SetLanguage(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = tag
	s.signal()
}

// SetInfo updates a participant's display name and hue.
func (s *Session) SetInfo(participantID uint64, name string, hue uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return fmt.Errorf("set info: %w", ErrUnknownParticipant)
	}
	p.Name = name
	p.Hue = hue
	s.signal()
	return nil
}
