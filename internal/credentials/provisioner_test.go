package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"

	"concierge/pkg/logger"
	"concierge/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu    sync.Mutex
	creds map[string]*model.ScanCredential
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{creds: map[string]*model.ScanCredential{}}
}

func (m *memoryStore) InsertCredentialIfAbsent(ctx context.Context, cred *model.ScanCredential) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[cred.RequestID]; ok {
		return false, nil
	}
	m.creds[cred.RequestID] = cred
	return true, nil
}

func (m *memoryStore) FindCredential(ctx context.Context, requestID string) (*model.ScanCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[requestID]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

const masterKey = "0123456789abcdef0123456789abcdef"

func TestDerive_Deterministic(t *testing.T) {
	p := NewProvisioner(newMemoryStore(), masterKey, logger.Discard())

	a, err := p.Derive("req-1")
	require.NoError(t, err)
	b, err := p.Derive("req-1")
	require.NoError(t, err)
	c, err := p.Derive("req-2")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 43)
}

func TestDerive_DependsOnMasterKey(t *testing.T) {
	p1 := NewProvisioner(newMemoryStore(), masterKey, logger.Discard())
	p2 := NewProvisioner(newMemoryStore(), masterKey+"x", logger.Discard())

	a, _ := p1.Derive("req-1")
	b, _ := p2.Derive("req-1")
	assert.NotEqual(t, a, b)
}

func TestDerive_RejectsEmptyID(t *testing.T) {
	p := NewProvisioner(newMemoryStore(), masterKey, logger.Discard())
	_, err := p.Derive("")
	assert.Error(t, err)
}

func TestProvision_Idempotent(t *testing.T) {
	store := newMemoryStore()
	p := NewProvisioner(store, masterKey, logger.Discard())
	ctx := context.Background()

	require.NoError(t, p.Provision(ctx, "req-1"))
	first, err := store.FindCredential(ctx, "req-1")
	require.NoError(t, err)

	require.NoError(t, p.Provision(ctx, "req-1"))
	second, err := store.FindCredential(ctx, "req-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, store.creds, 1)
}

func TestProvision_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection reset")
	p := NewProvisioner(store, masterKey, logger.Discard())

	err := p.Provision(context.Background(), "req-1")
	assert.ErrorContains(t, err, "connection reset")
}
