package permanent

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/ValentinKolb/kBridge/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
)

var (
	savesCounter     = metrics.NewCounter(`kbridge_store_saves_total{table="permanent"}`)
	evictionsCounter = metrics.NewCounter(`kbridge_store_evictions_total{table="permanent"}`)
	removesCounter   = metrics.NewCounter(`kbridge_store_removes_total{table="permanent"}`)
)

type storeImpl struct {
	mu       sync.Mutex
	path     string
	slots    []record
	byID     map[string]int
	sequence *util.SeqHeap // occupied slots ordered by sequence number
}

// NewMemoryStore creates a permanent table that is not backed by a file.
func NewMemoryStore(capacity int) store.IKeyStore {
	s, _ := open("", capacity)
	return s
}

// Open creates a permanent table backed by the file at path. An existing
// image is loaded; a missing file starts an empty table. The image is
// rewritten in full on every mutating call.
func Open(path string, capacity int) (store.IKeyStore, error) {
	if path == "" {
		return nil, errs.Validationf("permanent store path must not be empty")
	}
	return open(path, capacity)
}

func open(path string, capacity int) (*storeImpl, error) {
	if capacity <= 0 {
		capacity = store.DefaultPermanentCapacity
	}

	s := &storeImpl{
		path:     path,
		slots:    make([]record, capacity),
		byID:     make(map[string]int, capacity),
		sequence: util.NewSeqHeap(),
	}

	if path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
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

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.byID[id]
	evicted := false
	if !exists {
		pos, evicted = s.writePos()
	}

	seq := s.nextSeq()

	// keep the previous content to roll back if the image cannot be written
	previous := s.slots[pos]

	value := make([]byte, len(data))
	copy(value, data)

	if evicted {
		delete(s.byID, previous.id)
	}
	s.slots[pos] = record{seq: seq, id: id, data: value}
	s.byID[id] = pos
	s.sequence.Set(pos, seq)

	if err := s.persist(); err != nil {
		// undo
		delete(s.byID, id)
		s.slots[pos] = previous
		if previous.free() {
			s.sequence.Remove(pos)
		} else {
			s.byID[previous.id] = pos
			s.sequence.Set(pos, previous.seq)
		}
		return err
	}

	savesCounter.Inc()
	if evicted {
		evictionsCounter.Inc()
		store.Logger.Debugf("permanent: evicted %q (seq %d) for %q", previous.id, previous.seq, id)
	}
	store.Logger.Debugf("permanent: saved %q in slot %d (seq %d, %d bytes)", id, pos, seq, len(data))
	return nil
}

func (s *storeImpl) Load(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.byID[id]
	if !ok {
		return nil, errs.NotFoundf("permanent: id %q not found", id)
	}

	res := make([]byte, len(s.slots[pos].data))
	copy(res, s.slots[pos].data)
	return res, nil
}

func (s *storeImpl) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.byID[id]
	if !ok {
		return false
	}

	previous := s.slots[pos]
	s.slots[pos].clear()
	delete(s.byID, id)
	s.sequence.Remove(pos)

	if err := s.persist(); err != nil {
		store.Logger.Errorf("permanent: remove %q: %v", id, err)
		s.slots[pos] = previous
		s.byID[id] = pos
		s.sequence.Set(pos, previous.seq)
		return false
	}

	removesCounter.Inc()
	return true
}

func (s *storeImpl) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *storeImpl) Capacity() int {
	return len(s.slots)
}

// --------------------------------------------------------------------------
// Helper Methods (callers hold s.mu)
// --------------------------------------------------------------------------

// writePos returns the first free slot, or the occupied slot holding the
// oldest write if the table is full
func (s *storeImpl) writePos() (pos int, evicted bool) {
	for i := range s.slots {
		if s.slots[i].free() {
			return i, false
		}
	}
	pos, _, _ = s.sequence.Min()
	return pos, true
}

// maxSeq returns the largest sequence number of all occupied slots
func (s *storeImpl) maxSeq() uint32 {
	var max uint32
	for i := range s.slots {
		if !s.slots[i].free() && s.slots[i].seq > max {
			max = s.slots[i].seq
		}
	}
	return max
}

// nextSeq returns the sequence number of the next write. When the counter
// would wrap, the occupied slots are renumbered 1..n in their write order.
func (s *storeImpl) nextSeq() uint32 {
	max := s.maxSeq()
	if max < math.MaxUint32 {
		return max + 1
	}

	occupied := make([]int, 0, len(s.byID))
	for i := range s.slots {
		if !s.slots[i].free() {
			occupied = append(occupied, i)
		}
	}
	sort.Slice(occupied, func(a, b int) bool {
		return s.slots[occupied[a]].seq < s.slots[occupied[b]].seq
	})
	for rank, pos := range occupied {
		s.slots[pos].seq = uint32(rank + 1)
		s.sequence.Set(pos, uint32(rank+1))
	}
	store.Logger.Infof("permanent: renumbered %d slots after sequence overflow", len(occupied))
	return uint32(len(occupied) + 1)
}

// persist rewrites the whole file image
func (s *storeImpl) persist() error {
	if s.path == "" {
		return nil
	}

	image := make([]byte, len(s.slots)*RecordSize)
	for i := range s.slots {
		s.slots[i].marshal(image[i*RecordSize : (i+1)*RecordSize])
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, image, 0600); err != nil {
		return errors.Wrapf(err, "permanent: write image %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "permanent: replace image %s", s.path)
	}
	return nil
}

// load reads the file image into the slots
func (s *storeImpl) load() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.Wrapf(err, "permanent: create directory %s", dir)
		}
	}

	image, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		store.Logger.Infof("permanent: no image at %s, starting empty", s.path)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "permanent: read image %s", s.path)
	}

	if len(image) != len(s.slots)*RecordSize {
		store.Logger.Warningf("permanent: image %s has %d bytes, expected %d; reading complete records only",
			s.path, len(image), len(s.slots)*RecordSize)
	}

	corrupt := 0
	for i := range s.slots {
		if (i+1)*RecordSize > len(image) {
			break
		}
		r, ok := unmarshalRecord(image[i*RecordSize : (i+1)*RecordSize])
		if !ok {
			corrupt++
			continue
		}
		if r.free() {
			continue
		}
		if _, dup := s.byID[r.id]; dup {
			// ids are unique among occupied slots, keep the first
			corrupt++
			continue
		}
		s.slots[i] = r
		s.byID[r.id] = i
		s.sequence.Set(i, r.seq)
	}

	if corrupt > 0 {
		store.Logger.Warningf("permanent: ignored %d corrupt records in %s", corrupt, s.path)
	}
	store.Logger.Infof("permanent: loaded %d of %d slots from %s", len(s.byID), len(s.slots), s.path)
	return nil
}

// String lists the occupied slots, used for debug output
func (s *storeImpl) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ""
	for i := range s.slots {
		if !s.slots[i].free() {
			out += fmt.Sprintf("[%d] seq=%3d size=%5d id=%s\n", i, s.slots[i].seq, len(s.slots[i].data), s.slots[i].id)
		}
	}
	return out
}
