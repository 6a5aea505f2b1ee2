package archive

import (
	"context"
	"testing"
	"time"

	"github.com/quillboard/quillboard/internal/ot"
	"github.com/quillboard/quillboard/internal/session"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestLoadMissReturnsNotFound(t *testing.T) {
	a := newTestArchive(t)

	text, lang, found, err := a.Load("unknown")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, text)
	require.Empty(t, lang)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	a := newTestArchive(t)

	require.NoError(t, a.Save("doc-a", "hello world", "go"))

	text, lang, found, err := a.Load("doc-a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello world", text)
	require.Equal(t, "go", lang)
}

func TestSaveOverwritesExistingRow(t *testing.T) {
	a := newTestArchive(t)

	require.NoError(t, a.Save("doc-a", "first", "plaintext"))
	require.NoError(t, a.Save("doc-a", "second", "plaintext"))

	text, _, found, err := a.Load("doc-a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "second", text)

	count, err := a.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCountReflectsDistinctDocuments(t *testing.T) {
	a := newTestArchive(t)

	require.NoError(t, a.Save("doc-a", "a", "plaintext"))
	require.NoError(t, a.Save("doc-b", "b", "plaintext"))

	count, err := a.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestPersistSavesOnlyWhenRevisionAdvances(t *testing.T) {
	a := newTestArchive(t)

	sess := session.New("plaintext", 0)
	snap := sess.Attach("tester", 0)
	insert := ot.New()
	insert.Insert("persisted text")
	_, err := sess.Submit(snap.ParticipantID, 0, insert)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	a.Persist(ctx, "doc-a", sess, 5*time.Millisecond)

	text, _, found, err := a.Load("doc-a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "persisted text", text)
}
