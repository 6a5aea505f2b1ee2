// Package registry implements the process-wide concurrent mapping from
// document id to Session, with at-most-one construction, reference-counted
// lifetime, and an archive bootstrap hook (spec.md §4.C).
//
// Grounded on the teacher's pkg/server/server.go, which keeps its
// documents in a single unsharded sync.Map (ServerState.documents,
// getOrCreateDocument via LoadOrStore). This repo generalizes that to N
// explicitly striped buckets, each independently locked, per spec.md §5's
// "N >= 16" recommendation for servers expecting many concurrent
// documents — a single sync.Map (or a single mutex) serializes every
// get_or_create across the whole process regardless of how many distinct
// documents are in play, which is exactly the higher-contention case the
// expanded spec anticipates.
package registry

import (
	"hash/fnv"
	"sync"

	"github.com/quillboard/quillboard/internal/ot"
	"github.com/quillboard/quillboard/internal/session"
)

// DefaultStripes is used when New is given a non-positive stripe count.
const DefaultStripes = 16

// Loader is the archive bootstrap hook: before returning a freshly
// created Session, the registry asks the loader for previously persisted
// text. A miss or an error is non-fatal — the session simply starts
// empty — matching spec.md §4.C's "the hook's failure is non-fatal".
type Loader interface {
	Load(documentID string) (text, language string, found bool, err error)
}

// Saver is the eviction-time flush hook: when a document's last reference
// drops, the registry offers the archive one more synchronous write of
// the final text, as a belt-and-suspenders measure alongside whatever
// periodic persister the archive collaborator runs on its own (see
// SPEC_FULL.md §4.C).
type Saver interface {
	Save(documentID, text, language string) error
}

// Registry is the N-striped concurrent {document id -> Session} map.
type Registry struct {
	stripes []*stripe

	defaultLanguage string
	maxDocumentSize int

	loader Loader
	saver  Saver

	onLoadError func(documentID string, err error)
	onSaveError func(documentID string, err error)
}

type stripe struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	session *session.Session
	refs    int
}

func newStripe() *stripe {
	return &stripe{entries: make(map[string]*entry)}
}

// Option configures optional collaborators on New.
type Option func(*Registry)

// WithLoader wires the archive bootstrap hook.
func WithLoader(l Loader) Option { return func(r *Registry) { r.loader = l } }

// WithSaver wires the eviction-time flush hook.
func WithSaver(s Saver) Option { return func(r *Registry) { r.saver = s } }

// WithLoadErrorHandler is called when Loader.Load returns a non-nil
// error; the default is to ignore it silently.
func WithLoadErrorHandler(f func(documentID string, err error)) Option {
	return func(r *Registry) { r.onLoadError = f }
}

// WithSaveErrorHandler is called when Saver.Save returns a non-nil error.
func WithSaveErrorHandler(f func(documentID string, err error)) Option {
	return func(r *Registry) { r.onSaveError = f }
}

// New creates a registry striped into numStripes buckets (DefaultStripes
// if numStripes <= 0). defaultLanguage and maxDocumentSize seed every
// freshly constructed Session.
func New(numStripes int, defaultLanguage string, maxDocumentSize int, opts ...Option) *Registry {
	if numStripes <= 0 {
		numStripes = DefaultStripes
	}
	r := &Registry{
		stripes:         make([]*stripe, numStripes),
		defaultLanguage: defaultLanguage,
		maxDocumentSize: maxDocumentSize,
	}
	for i := range r.stripes {
		r.stripes[i] = newStripe()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) stripeFor(documentID string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(documentID))
	return r.stripes[h.Sum32()%uint32(len(r.stripes))]
}

// Handle is a reference-counted lease on a Session. Callers must call
// Release exactly once when they're done (driver teardown, or a failed
// attach) so the registry can evict the entry when the last reference
// drops.
type Handle struct {
	*session.Session

	id *string // index into the owning registry; nil once released
	r  *Registry
}

// Release drops this handle's reference. If it was the last outstanding
// reference, the entry is evicted from the registry and, if a Saver is
// configured, its final text is flushed synchronously first.
func (h *Handle) Release() {
	if h.id == nil {
		return
	}
	h.r.release(*h.id)
	h.id = nil
}

// GetOrCreate returns the Session for documentID, constructing it (via
// the optional Loader bootstrap hook) if this is the first reference.
// Concurrent callers racing on an unseen id all receive a handle to the
// exact same Session; the stripe's lock serializes construction so
// exactly one caller actually builds it.
func (r *Registry) GetOrCreate(documentID string) *Handle {
	st := r.stripeFor(documentID)

	st.mu.Lock()
	e, ok := st.entries[documentID]
	if !ok {
		e = &entry{session: r.construct(documentID)}
		st.entries[documentID] = e
	}
	e.refs++
	st.mu.Unlock()

	id := documentID
	return &Handle{Session: e.session, id: &id, r: r}
}

func (r *Registry) construct(documentID string) *session.Session {
	if r.loader != nil {
		text, language, found, err := r.loader.Load(documentID)
		if err != nil {
			if r.onLoadError != nil {
				r.onLoadError(documentID, err)
			}
		} else if found {
			return session.NewFromText(text, language, r.maxDocumentSize)
		}
	}
	return session.New(r.defaultLanguage, r.maxDocumentSize)
}

func (r *Registry) release(documentID string) {
	st := r.stripeFor(documentID)

	st.mu.Lock()
	e, ok := st.entries[documentID]
	if !ok {
		st.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		st.mu.Unlock()
		return
	}
	delete(st.entries, documentID)
	st.mu.Unlock()

	if r.saver != nil {
		if err := r.saver.Save(documentID, e.session.Text(), e.session.Language()); err != nil {
			if r.onSaveError != nil {
				r.onSaveError(documentID, err)
			}
		}
	}
}

// Len reports the number of distinct documents currently tracked, summed
// across every stripe. The /api/stats HTTP handler uses Stats instead.
func (r *Registry) Len() int {
	total := 0
	for _, st := range r.stripes {
		st.mu.Lock()
		total += len(st.entries)
		st.mu.Unlock()
	}
	return total
}

// AggregateStats is the cross-document rollup spec.md §6 requires from
// /api/stats: live session count, total connected participants, and total
// bytes logged (the UTF-16 length of every live document's current text,
// summed).
type AggregateStats struct {
	NumDocuments      int
	TotalParticipants int
	TotalBytesLogged  int
}

// Stats walks every stripe and sums participants and text length across
// all live sessions. Each stripe is locked only long enough to snapshot
// its session pointers, so this does not serialize with GetOrCreate/
// release for longer than a slice copy.
func (r *Registry) Stats() AggregateStats {
	var sessions []*session.Session
	for _, st := range r.stripes {
		st.mu.Lock()
		for _, e := range st.entries {
			sessions = append(sessions, e.session)
		}
		st.mu.Unlock()
	}

	stats := AggregateStats{NumDocuments: len(sessions)}
	for _, sess := range sessions {
		stats.TotalParticipants += len(sess.Roster())
		stats.TotalBytesLogged += ot.UTF16Len(sess.Text())
	}
	return stats
}
