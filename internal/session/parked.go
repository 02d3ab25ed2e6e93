package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
)

// ParkedSale is a suspended draft waiting for its customer to come back.
// The draft keeps full unit identities so resuming restores the exact
// reservation state the desk walked away from.
type ParkedSale struct {
	ID       string           `json:"id"`
	BranchID string           `json:"branch_id"`
	DeskID   string           `json:"desk_id"`
	Owner    string           `json:"owner"`
	Note     string           `json:"note"`
	Draft    domain.DraftSale `json:"draft"`
	ParkedAt time.Time        `json:"parked_at"`
}

type ParkedSaleStore interface {
	Put(ctx context.Context, parked ParkedSale) error
	Get(ctx context.Context, branchID string, id string) (*ParkedSale, bool, error)
	List(ctx context.Context, branchID string) ([]ParkedSale, error)
	Delete(ctx context.Context, branchID string, id string) error
}

type RedisParkedSaleStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisParkedSaleStore(addr string, password string, db int, ttl time.Duration) *RedisParkedSaleStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisParkedSaleStore{client: client, ttl: ttl}
}

func (s *RedisParkedSaleStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisParkedSaleStore) Close() error {
	return s.client.Close()
}

func parkedKey(branchID string) string {
	return "parked:" + branchID
}

func (s *RedisParkedSaleStore) Put(ctx context.Context, parked ParkedSale) error {
	payload, err := json.Marshal(parked)
	if err != nil {
		return err
	}
	key := parkedKey(parked.BranchID)
	if err := s.client.HSet(ctx, key, parked.ID, payload).Err(); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.client.Expire(ctx, key, s.ttl).Err()
	}
	return nil
}

func (s *RedisParkedSaleStore) Get(ctx context.Context, branchID string, id string) (*ParkedSale, bool, error) {
	val, err := s.client.HGet(ctx, parkedKey(branchID), id).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var parked ParkedSale
	if err := json.Unmarshal([]byte(val), &parked); err != nil {
		return nil, false, err
	}
	return &parked, true, nil
}

func (s *RedisParkedSaleStore) List(ctx context.Context, branchID string) ([]ParkedSale, error) {
	vals, err := s.client.HGetAll(ctx, parkedKey(branchID)).Result()
	if err != nil {
		return nil, err
	}

	result := make([]ParkedSale, 0, len(vals))
	for _, raw := range vals {
		var parked ParkedSale
		if err := json.Unmarshal([]byte(raw), &parked); err != nil {
			continue
		}
		result = append(result, parked)
	}
	return result, nil
}

func (s *RedisParkedSaleStore) Delete(ctx context.Context, branchID string, id string) error {
	return s.client.HDel(ctx, parkedKey(branchID), id).Err()
}

// MemoryParkedSaleStore backs dev/demo mode when no redis address is
// configured. Parked drafts do not survive a restart.
type MemoryParkedSaleStore struct {
	mu     sync.RWMutex
	parked map[string]map[string]ParkedSale
}

func NewMemoryParkedSaleStore() *MemoryParkedSaleStore {
	return &MemoryParkedSaleStore{parked: make(map[string]map[string]ParkedSale)}
}

func (s *MemoryParkedSaleStore) Put(_ context.Context, parked ParkedSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.parked[parked.BranchID]
	if !ok {
		byID = make(map[string]ParkedSale)
		s.parked[parked.BranchID] = byID
	}
	byID[parked.ID] = parked
	return nil
}

func (s *MemoryParkedSaleStore) Get(_ context.Context, branchID string, id string) (*ParkedSale, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parked, ok := s.parked[branchID][id]
	if !ok {
		return nil, false, nil
	}
	return &parked, true, nil
}

func (s *MemoryParkedSaleStore) List(_ context.Context, branchID string) ([]ParkedSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ParkedSale, 0, len(s.parked[branchID]))
	for _, parked := range s.parked[branchID] {
		result = append(result, parked)
	}
	return result, nil
}

func (s *MemoryParkedSaleStore) Delete(_ context.Context, branchID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.parked[branchID], id)
	return nil
}
