package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcrawl/pkg/logger"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	l := Open(filepath.Join(t.TempDir(), "ledger.json"), logger.NewTestLogger())

	liked, passed := l.Counts()
	assert.Equal(t, 0, liked)
	assert.Equal(t, 0, passed)
	assert.False(t, l.Seen("A"))
}

func TestMarkLikedWritesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := Open(path, logger.NewTestLogger())

	require.NoError(t, l.MarkLiked("A"))

	assert.True(t, l.Seen("A"))
	assert.True(t, l.Liked("A"))
	assert.False(t, l.Passed("A"))

	// write-through: a fresh instance sees the entry
	reloaded := Open(path, logger.NewTestLogger())
	assert.True(t, reloaded.Liked("A"))
}

func TestMembershipIsStickyAndExclusive(t *testing.T) {
	l := Open(filepath.Join(t.TempDir(), "ledger.json"), logger.NewTestLogger())

	require.NoError(t, l.MarkLiked("A"))
	// a second interaction for the same hid is a no-op, even the other kind
	require.NoError(t, l.MarkLiked("A"))
	require.NoError(t, l.MarkPassed("A"))

	liked, passed := l.Counts()
	assert.Equal(t, 1, liked)
	assert.Equal(t, 0, passed)
	assert.True(t, l.Liked("A"))
	assert.False(t, l.Passed("A"))
}

func TestMarkPassed(t *testing.T) {
	l := Open(filepath.Join(t.TempDir(), "ledger.json"), logger.NewTestLogger())

	require.NoError(t, l.MarkPassed("B"))
	require.NoError(t, l.MarkLiked("B"))

	liked, passed := l.Counts()
	assert.Equal(t, 0, liked)
	assert.Equal(t, 1, passed)
}

func TestOpenMalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	l := Open(path, logger.NewTestLogger())

	liked, passed := l.Counts()
	assert.Equal(t, 0, liked)
	assert.Equal(t, 0, passed)
}

func TestOpenResolvesDuplicateMembership(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"liked":["A"],"passed":["A","B"]}`), 0600))

	l := Open(path, logger.NewTestLogger())

	assert.True(t, l.Liked("A"))
	assert.False(t, l.Passed("A"))
	assert.True(t, l.Passed("B"))
}
