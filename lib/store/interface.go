package store

import (
	"fmt"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Limits
// --------------------------------------------------------------------------

const (
	// MaxIDSize is the size of the id column of a permanent record. Ids must be
	// strictly shorter so that a stored id is always NUL terminated.
	MaxIDSize = 100
	// MaxDataSize is the largest payload (after optional encryption) a table accepts.
	MaxDataSize = 2048

	// DefaultPermanentCapacity is the number of slots of the permanent table
	DefaultPermanentCapacity = 30
	// DefaultTemporaryCapacity is the number of entries of the temporary table
	DefaultTemporaryCapacity = 200
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IKeyStore is a bounded table mapping ids to opaque payloads.
// Every method is safe for concurrent use; all mutations of one table are
// mutually exclusive and either complete or leave the table unchanged.
type IKeyStore interface {
	// Save stores data under id, overwriting an existing entry with the same id.
	// When the table is full another entry is evicted according to the table's policy.
	// Oversized ids or payloads are rejected with errs.ErrValidation without mutating the table.
	Save(id string, data []byte) error
	// Load returns a copy of the payload stored under id, or an errs.ErrNotFound error.
	// Load never changes the eviction order.
	Load(id string) ([]byte, error)
	// Remove deletes the entry with the given id. It reports whether an entry was removed
	// and is idempotent.
	Remove(id string) bool
	// Len returns the number of occupied entries.
	Len() int
	// Capacity returns the maximum number of entries.
	Capacity() int
}

// Cipher encrypts payloads with a pass-phrase. It is implemented by the
// cryptographic provider.
type Cipher interface {
	EncryptPassword(password, data []byte) ([]byte, error)
	DecryptPassword(password, data []byte) ([]byte, error)
}

// --------------------------------------------------------------------------
// Store Types
// --------------------------------------------------------------------------

// StoreType selects the table a storage command operates on.
type StoreType uint16

const (
	StoreTypeUnknown   StoreType = iota // 0: invalid
	StoreTypePermanent                  // 1: durable, evicted by write sequence
	StoreTypeTemporary                  // 2: volatile, evicted FIFO
)

func (t StoreType) String() string {
	switch t {
	case StoreTypePermanent:
		return "permanent"
	case StoreTypeTemporary:
		return "temporary"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// ParseStoreType converts the CLI representation of a store type.
func ParseStoreType(s string) (StoreType, error) {
	switch s {
	case "permanent", "perm", "p":
		return StoreTypePermanent, nil
	case "temporary", "temp", "t":
		return StoreTypeTemporary, nil
	default:
		return StoreTypeUnknown, errs.Validationf("invalid store type %q (expected permanent or temporary)", s)
	}
}

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

// ValidateID checks that id is usable as a key of any table.
func ValidateID(id string) error {
	if id == "" {
		return errs.Validationf("id must not be empty")
	}
	if len(id) >= MaxIDSize {
		return errs.Validationf("id too long: %d bytes (max %d)", len(id), MaxIDSize-1)
	}
	for i := 0; i < len(id); i++ {
		if id[i] == 0 {
			return errs.Validationf("id must not contain NUL bytes")
		}
	}
	return nil
}

// ValidateData checks the payload size limit.
func ValidateData(data []byte) error {
	if len(data) > MaxDataSize {
		return errs.Validationf("payload too large: %d bytes (max %d)", len(data), MaxDataSize)
	}
	return nil
}
