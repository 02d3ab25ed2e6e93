package session

import (
	"errors"
	"sync"
	"time"

	"github.com/eharain/Rutba-POS-sub002/internal/sale"
	"github.com/eharain/Rutba-POS-sub002/internal/xid"
)

var (
	ErrConflict        = errors.New("sale modified by another request")
	ErrSessionNotFound = errors.New("sale session not found")
)

// Session owns one in-progress sale. All mutations go through
// Manager.Update, which holds the session lock and bumps Version on
// success; a caller presenting a stale version is rejected before its
// change touches the order.
type Session struct {
	ID        string
	BranchID  string
	DeskID    string
	Owner     string
	Version   int64
	Order     *sale.Order
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) Create(branchID string, deskID string, owner string, order *sale.Order) *Session {
	now := time.Now().UTC()
	session := &Session{
		ID:        xid.New("sess"),
		BranchID:  branchID,
		DeskID:    deskID,
		Owner:     owner,
		Version:   1,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.locks[session.ID] = &sync.Mutex{}
	m.mu.Unlock()

	return session
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Update runs fn with the session locked. The version check and the
// mutation happen under the same lock, so concurrent desks on one sale
// serialize and the one holding a stale version gets ErrConflict.
func (m *Manager) Update(id string, version int64, fn func(*Session) error) (*Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[id]
	lock := m.locks[id]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrSessionNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	if session.Version != version {
		return nil, ErrConflict
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.Version++
	session.UpdatedAt = time.Now().UTC()
	return session, nil
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	delete(m.locks, id)
	m.mu.Unlock()
}
