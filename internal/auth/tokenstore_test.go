package auth

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestTokenStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := NewTokenStore(path)
	require.NoError(t, err)
	assert.Empty(t, s.Token())

	require.NoError(t, s.Set("tok-1"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewTokenStore(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", reopened.Token())

	s.Clear()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	reopened, err = NewTokenStore(path)
	require.NoError(t, err)
	assert.Empty(t, reopened.Token())
}

func TestTokenStore_DiscardsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s, err := NewTokenStore(path)
	require.NoError(t, err)
	assert.Empty(t, s.Token())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupt file should be removed")

	require.NoError(t, s.Set("tok-2"))
	reopened, err := NewTokenStore(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", reopened.Token())
}

func TestTokenStore_EvictIsEpochConditional(t *testing.T) {
	s, err := NewTokenStore("")
	require.NoError(t, err)

	require.NoError(t, s.Set("old"))
	_, oldEpoch := s.Snapshot()
	require.NoError(t, s.Set("new"))

	assert.False(t, s.Evict(oldEpoch), "a stale epoch must not evict the newer session")
	assert.Equal(t, "new", s.Token())

	_, cur := s.Snapshot()
	assert.True(t, s.Evict(cur))
	assert.Empty(t, s.Token())
	assert.Greater(t, s.Epoch(), cur)

	assert.False(t, s.Evict(s.Epoch()), "nothing left to evict")
}

func TestTokenStore_SubscribersSeeEveryTransition(t *testing.T) {
	s, err := NewTokenStore("")
	require.NoError(t, err)

	var got []Change
	unsubscribe := s.Subscribe(func(ch Change) { got = append(got, ch) })

	require.NoError(t, s.Set("tok"))
	s.Evict(s.Epoch())
	require.NoError(t, s.Set("tok-2"))
	s.Clear()
	unsubscribe()
	require.NoError(t, s.Set("unseen"))

	require.Len(t, got, 4)
	assert.Equal(t, []Reason{ReasonLogin, ReasonEvicted, ReasonLogin, ReasonLogout},
		[]Reason{got[0].Reason, got[1].Reason, got[2].Reason, got[3].Reason})
	assert.True(t, got[0].HasToken)
	assert.False(t, got[1].HasToken)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Epoch, got[i-1].Epoch)
	}
}

func TestTokenStore_WatchSeesOtherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := NewTokenStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("mine"))

	var mu sync.Mutex
	var changes []Change
	s.Subscribe(func(ch Change) {
		mu.Lock()
		changes = append(changes, ch)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))
	defer s.Close()

	other, err := NewTokenStore(path)
	require.NoError(t, err)
	other.Clear()

	require.Eventually(t, func() bool { return s.Token() == "" }, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1]
	assert.Equal(t, ReasonExternal, last.Reason)
	assert.False(t, last.HasToken)
}

func TestTokenStore_CloseWithoutWatchIsNoop(t *testing.T) {
	s, err := NewTokenStore("")
	require.NoError(t, err)
	assert.NoError(t, s.Watch(context.Background()))
	assert.NoError(t, s.Close())
}
