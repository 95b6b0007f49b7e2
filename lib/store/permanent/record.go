package permanent

import (
	"bytes"
	"encoding/binary"

	"github.com/ValentinKolb/kBridge/lib/store"
)

// On-disk record layout (little endian, no header, no checksum):
//
//	seq      u32
//	id       [100]byte  NUL padded, empty = free slot
//	dataLen  u16
//	data     [2048]byte zero padded
const (
	seqSize    = 4
	lenSize    = 2
	idOffset   = seqSize
	lenOffset  = idOffset + store.MaxIDSize
	dataOffset = lenOffset + lenSize
	RecordSize = dataOffset + store.MaxDataSize
)

// record is one slot of the permanent table. A free slot has seq 0 and an empty id.
type record struct {
	seq  uint32
	id   string
	data []byte
}

func (r *record) free() bool {
	return r.id == ""
}

func (r *record) clear() {
	r.seq = 0
	r.id = ""
	r.data = nil
}

// marshal writes the record into dst, which must be RecordSize bytes
func (r *record) marshal(dst []byte) {
	for i := range dst[:RecordSize] {
		dst[i] = 0
	}
	binary.LittleEndian.PutUint32(dst[0:seqSize], r.seq)
	copy(dst[idOffset:lenOffset], r.id)
	binary.LittleEndian.PutUint16(dst[lenOffset:dataOffset], uint16(len(r.data)))
	copy(dst[dataOffset:], r.data)
}

// unmarshalRecord parses a RecordSize byte image. Records with a corrupt
// length or id are returned as free slots, ok reports whether the image was sane.
func unmarshalRecord(src []byte) (r record, ok bool) {
	seq := binary.LittleEndian.Uint32(src[0:seqSize])
	idBytes := src[idOffset:lenOffset]
	dataLen := int(binary.LittleEndian.Uint16(src[lenOffset:dataOffset]))

	end := bytes.IndexByte(idBytes, 0)
	if end < 0 {
		// no terminator: the id column was overwritten, treat the slot as free
		return record{}, false
	}
	if end == 0 {
		return record{}, true
	}
	if dataLen > store.MaxDataSize {
		return record{}, false
	}

	data := make([]byte, dataLen)
	copy(data, src[dataOffset:dataOffset+dataLen])
	return record{
		seq:  seq,
		id:   string(idBytes[:end]),
		data: data,
	}, true
}
