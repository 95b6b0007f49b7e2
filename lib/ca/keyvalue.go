package ca

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/ValentinKolb/kBridge/lib/errs"
)

// Custom data travels as a packed key-value table (integers little endian):
//
//	u16 count | 8 reserved bytes
//	count x { [50]byte key (NUL padded) | u16 value length | 8 reserved bytes }
//	values, concatenated in entry order
//
// Packed values carry a terminating NUL that is included in their length.

const (
	// MaxKeyValueCount is the largest number of entries of a packed table
	MaxKeyValueCount = 50
	// KeyValueKeySize is the size of the key column, keys are shorter
	KeyValueKeySize = 50

	kvHeaderSize = 2 + 8
	kvEntrySize  = KeyValueKeySize + 2 + 8
)

// PackKeyValues encodes data as a packed key-value table. Entries are
// written in key order.
func PackKeyValues(data map[string][]byte) ([]byte, error) {
	if len(data) > MaxKeyValueCount {
		return nil, errs.Validationf("too many key-value entries: %d (max %d)", len(data), MaxKeyValueCount)
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		if len(k) == 0 || len(k) >= KeyValueKeySize || bytes.IndexByte([]byte(k), 0) >= 0 {
			return nil, errs.Validationf("invalid key-value key %q", k)
		}
		if len(data[k])+1 > 0xFFFF {
			return nil, errs.Validationf("value of %q too large: %d bytes", k, len(data[k]))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]byte, kvHeaderSize+len(keys)*kvEntrySize)
	binary.LittleEndian.PutUint16(out, uint16(len(keys)))

	pos := kvHeaderSize
	for _, k := range keys {
		copy(out[pos:pos+KeyValueKeySize], k)
		binary.LittleEndian.PutUint16(out[pos+KeyValueKeySize:], uint16(len(data[k])+1))
		pos += kvEntrySize
	}
	for _, k := range keys {
		out = append(out, data[k]...)
		out = append(out, 0)
	}
	return out, nil
}

// ParseKeyValues decodes a packed key-value table. A single trailing NUL of
// each value is stripped. Truncated values are rejected.
func ParseKeyValues(raw []byte) (map[string][]byte, error) {
	if len(raw) < kvHeaderSize {
		return nil, errs.Validationf("key-value table too short: %d bytes", len(raw))
	}
	count := int(binary.LittleEndian.Uint16(raw))
	if count > MaxKeyValueCount {
		return nil, errs.Validationf("too many key-value entries: %d (max %d)", count, MaxKeyValueCount)
	}

	dataPos := kvHeaderSize + count*kvEntrySize
	if len(raw) < dataPos {
		return nil, errs.Validationf("key-value table truncated in entry headers")
	}

	res := make(map[string][]byte, count)
	for i := 0; i < count; i++ {
		entry := raw[kvHeaderSize+i*kvEntrySize:]
		key := entry[:KeyValueKeySize]
		if n := bytes.IndexByte(key, 0); n >= 0 {
			key = key[:n]
		}
		size := int(binary.LittleEndian.Uint16(entry[KeyValueKeySize:]))
		if len(raw)-dataPos < size {
			return nil, errs.Validationf("value of %q truncated", key)
		}

		value := raw[dataPos : dataPos+size]
		dataPos += size
		if n := len(value); n > 0 && value[n-1] == 0 {
			value = value[:n-1]
		}
		res[string(key)] = bytes.Clone(value)
	}
	return res, nil
}
