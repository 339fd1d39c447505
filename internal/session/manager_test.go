package session

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	count  int64
	clears int
	err    error
}

func (s *memStore) ClearAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.clears++
	s.count = 0
	return nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

func TestSessionIDFormat(t *testing.T) {
	now := time.UnixMilli(1767323045000)
	id := NewSessionID(now)
	assert.Regexp(t, regexp.MustCompile(`^session_1767323045000_[0-9a-f]{9}$`), id)

	created, err := CreatedAt(id)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), created.UnixMilli())

	_, err = CreatedAt("bogus")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{ClearMethod: ClearNone}.Validate())

	var ve *ValidationError
	assert.True(t, errors.As(Config{ClearOnStart: true, ClearMethod: ClearByAge}.Validate(), &ve))
	assert.Error(t, Config{ClearMethod: ClearBySession}.Validate())
	assert.Error(t, Config{ClearMethod: "sometimes"}.Validate())

	_, err := NewManager(&memStore{}, Config{ClearMethod: ClearByAge}, nil)
	assert.Error(t, err)
}

func TestStartupRunsOnce(t *testing.T) {
	store := &memStore{count: 7}
	m, err := NewManager(store, DefaultConfig(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Startup(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.clears)
	info, err := m.Info(context.Background())
	require.NoError(t, err)
	assert.Zero(t, info.DocumentCount)
}

func TestStartupNoneKeepsDocuments(t *testing.T) {
	store := &memStore{count: 3}
	m, err := NewManager(store, Config{ClearOnStart: true, ClearMethod: ClearNone}, nil)
	require.NoError(t, err)

	require.NoError(t, m.Startup(context.Background()))
	assert.Zero(t, store.clears)
}

func TestStartupErrorIsSticky(t *testing.T) {
	store := &memStore{err: errors.New("pinecone down")}
	m, err := NewManager(store, DefaultConfig(), nil)
	require.NoError(t, err)

	assert.Error(t, m.Startup(context.Background()))
	store.err = nil
	assert.Error(t, m.Startup(context.Background()))
}

func TestInfoIsLive(t *testing.T) {
	store := &memStore{count: 2}
	m, err := NewManager(store, Config{ClearMethod: ClearNone}, nil)
	require.NoError(t, err)
	created, _ := CreatedAt(m.ID())
	m.now = func() time.Time { return created.Add(1500 * time.Millisecond) }

	info, err := m.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.DocumentCount)
	assert.Equal(t, int64(1500), info.UptimeMs)
	assert.Equal(t, m.ID(), info.SessionID)

	store.count = 5
	info, err = m.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.DocumentCount)
}

func TestClearCurrentIgnoresConfiguredMethod(t *testing.T) {
	store := &memStore{count: 4}
	m, err := NewManager(store, Config{ClearOnStart: false, ClearMethod: ClearNone}, nil)
	require.NoError(t, err)

	require.NoError(t, m.ClearCurrent(context.Background()))
	require.NoError(t, m.ClearCurrent(context.Background()))
	assert.Equal(t, 2, store.clears)
}

func TestInitializeReplacesConfig(t *testing.T) {
	store := &memStore{count: 4}
	m, err := NewManager(store, Config{ClearMethod: ClearNone}, nil)
	require.NoError(t, err)

	require.Error(t, m.Initialize(context.Background(), &Config{ClearOnStart: true, ClearMethod: ClearByAge}))
	assert.Equal(t, ClearNone, m.Config().ClearMethod)

	cfg := DefaultConfig()
	require.NoError(t, m.Initialize(context.Background(), &cfg))
	assert.Equal(t, 1, store.clears)
	assert.Equal(t, ClearAll, m.Config().ClearMethod)
}
