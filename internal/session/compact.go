package session

import "github.com/quillboard/quillboard/internal/ot"

// Compact collapses the log into a single synthetic Insert(current text)
// operation, as permitted by spec §5 "Bounded resources", when no
// attached participant's observed revision predates the compaction point
// (the session's current revision at call time). It is a no-op — and
// returns false — if any participant is behind, or if there is nothing
// worth compacting yet.
//
// New relative to the teacher, which never compacts; grounded on spec §5's
// explicit permission. logBase lets CurrentRevision/GetHistory/Submit stay
// unaware that compaction ever happened: the external revision numbering
// is preserved across the call, only the internal log shrinks to one
// entry.
func (s *Session) Compact() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.currentRevisionLocked()
	if current == 0 || len(s.log) <= 1 {
		return false
	}

	for _, p := range s.participants {
		if p.lastObserved < current {
			return false
		}
	}

	op := ot.New()
	op.Insert(s.text)

	s.log = []UserOperation{{ID: systemUserID, Operation: op}}
	s.logBase = current - 1
	return true
}
