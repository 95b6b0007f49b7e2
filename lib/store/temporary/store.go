package temporary

import (
	"sync"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/golang-lru/simplelru"
)

var (
	savesCounter     = metrics.NewCounter(`kbridge_store_saves_total{table="temporary"}`)
	evictionsCounter = metrics.NewCounter(`kbridge_store_evictions_total{table="temporary"}`)
	removesCounter   = metrics.NewCounter(`kbridge_store_removes_total{table="temporary"}`)
)

// storeImpl keeps entries in insertion order. The LRU list is only ever
// touched by Save (remove + add) and read with Peek, so its recency order
// is exactly the insertion order and its eviction is strict FIFO.
type storeImpl struct {
	mu       sync.Mutex
	entries  *simplelru.LRU
	capacity int
}

// NewStore creates a volatile table holding at most capacity entries.
func NewStore(capacity int) store.IKeyStore {
	if capacity <= 0 {
		capacity = store.DefaultTemporaryCapacity
	}

	// no eviction callback: simplelru also invokes it for explicit removals
	entries, err := simplelru.NewLRU(capacity, nil)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}

	return &storeImpl{
		entries:  entries,
		capacity: capacity,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Save(id string, data []byte) error {
	if err := store.ValidateID(id); err != nil {
		return err
	}
	if err := store.ValidateData(data); err != nil {
		return err
	}

	value := make([]byte, len(data))
	copy(value, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	// a re-saved id moves to the tail
	s.entries.Remove(id)
	if s.entries.Add(id, value) {
		evictionsCounter.Inc()
	}

	savesCounter.Inc()
	return nil
}

func (s *storeImpl) Load(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries.Peek(id)
	if !ok {
		return nil, errs.NotFoundf("temporary: id %q not found", id)
	}

	data := v.([]byte)
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}

func (s *storeImpl) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries.Remove(id) {
		removesCounter.Inc()
		return true
	}
	return false
}

func (s *storeImpl) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

func (s *storeImpl) Capacity() int {
	return s.capacity
}

// IDs returns the live ids from oldest to newest.
func (s *storeImpl) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.entries.Keys()
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.(string)
	}
	return ids
}
