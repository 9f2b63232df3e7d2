package acme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/qbsru/widgetdomains/internal/port/certmanager"
)

// Order states. They double as the provider status vocabulary once
// lower-cased.
const (
	StateValidating = "VALIDATING"
	StateIssued     = "ISSUED"
	StateInvalid    = "INVALID"
	StateRevoked    = "REVOKED"
)

// ErrOrderChanged is returned when a conditional write loses to another
// writer.
var ErrOrderChanged = errors.New("acme order changed concurrently")

// Order tracks one asynchronous certificate issuance.
type Order struct {
	ID          string     `json:"id"`
	Domain      string     `json:"domain"`
	State       string     `json:"state"`
	Error       string     `json:"error,omitempty"`
	Certificate []byte     `json:"certificate,omitempty"` // PEM bundle
	SealedKey   []byte     `json:"sealed_key,omitempty"`  // PEM private key, sealed with a KeySealer
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// OrderStore persists orders across restarts. Writes are conditional on the
// revision returned by Get, so issuance and deletion never overwrite each
// other. Get returns certmanager.ErrCertificateNotFound for unknown ids.
type OrderStore interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, uint64, error)
	Update(ctx context.Context, o *Order, revision uint64) (uint64, error)
	Delete(ctx context.Context, id string, revision uint64) error
	List(ctx context.Context) ([]Order, error)
}

// KVOrderStore keeps orders in a NATS JetStream KV bucket.
type KVOrderStore struct {
	kv jetstream.KeyValue
}

// NewKVOrderStore wraps a KV bucket.
func NewKVOrderStore(kv jetstream.KeyValue) *KVOrderStore {
	return &KVOrderStore{kv: kv}
}

func (s *KVOrderStore) Create(ctx context.Context, o *Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}
	if _, err := s.kv.Create(ctx, o.ID, data); err != nil {
		return fmt.Errorf("create order %s: %w", o.ID, kvError(err))
	}
	return nil
}

func (s *KVOrderStore) Get(ctx context.Context, id string) (*Order, uint64, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrInvalidKey) {
			return nil, 0, fmt.Errorf("get order %s: %w", id, certmanager.ErrCertificateNotFound)
		}
		return nil, 0, fmt.Errorf("get order %s: %w", id, err)
	}
	var o Order
	if err := json.Unmarshal(entry.Value(), &o); err != nil {
		return nil, 0, fmt.Errorf("decode order %s: %w", id, err)
	}
	return &o, entry.Revision(), nil
}

func (s *KVOrderStore) Update(ctx context.Context, o *Order, revision uint64) (uint64, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return 0, fmt.Errorf("marshal order %s: %w", o.ID, err)
	}
	rev, err := s.kv.Update(ctx, o.ID, data, revision)
	if err != nil {
		return 0, fmt.Errorf("update order %s: %w", o.ID, kvError(err))
	}
	return rev, nil
}

func (s *KVOrderStore) Delete(ctx context.Context, id string, revision uint64) error {
	err := s.kv.Delete(ctx, id, jetstream.LastRevision(revision))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete order %s: %w", id, kvError(err))
	}
	return nil
}

func (s *KVOrderStore) List(ctx context.Context) ([]Order, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var out []Order
	for id := range lister.Keys() {
		o, _, err := s.Get(ctx, id)
		if errors.Is(err, certmanager.ErrCertificateNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// kvError maps a failed revision check onto ErrOrderChanged.
func kvError(err error) error {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return fmt.Errorf("%w: %w", ErrOrderChanged, err)
	}
	return err
}

type memOrder struct {
	order Order
	rev   uint64
}

// MemoryOrderStore keeps orders in process memory.
type MemoryOrderStore struct {
	mu     sync.Mutex
	seq    uint64
	orders map[string]memOrder
}

// NewMemoryOrderStore creates an empty in-memory store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]memOrder)}
}

func (s *MemoryOrderStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("create order %s: %w", o.ID, ErrOrderChanged)
	}
	s.seq++
	s.orders[o.ID] = memOrder{order: *o, rev: s.seq}
	return nil
}

func (s *MemoryOrderStore) Get(_ context.Context, id string) (*Order, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.orders[id]
	if !ok {
		return nil, 0, fmt.Errorf("get order %s: %w", id, certmanager.ErrCertificateNotFound)
	}
	o := m.order
	return &o, m.rev, nil
}

func (s *MemoryOrderStore) Update(_ context.Context, o *Order, revision uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.orders[o.ID]
	if !ok || m.rev != revision {
		return 0, fmt.Errorf("update order %s: %w", o.ID, ErrOrderChanged)
	}
	s.seq++
	s.orders[o.ID] = memOrder{order: *o, rev: s.seq}
	return s.seq, nil
}

func (s *MemoryOrderStore) Delete(_ context.Context, id string, revision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.orders[id]
	if !ok {
		return nil
	}
	if m.rev != revision {
		return fmt.Errorf("delete order %s: %w", id, ErrOrderChanged)
	}
	delete(s.orders, id)
	return nil
}

func (s *MemoryOrderStore) List(_ context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, m := range s.orders {
		out = append(out, m.order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
