package codec

import (
	"encoding/binary"
	"math"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// Frame layout (all integers little endian):
//
//	offset 0   requestId   u32
//	offset 4   commandType u16
//	offset 6   fieldCount  u16
//	offset 8   fieldCount x {fieldType u16, dataLength u32, reserved u64}
//	...        payloads of all fields, concatenated in header order
//
// Payload offsets are implicit: the payload of field i starts after the sum
// of the lengths of fields 0..i-1.

// Encode serializes a command into a new buffer.
// The command must be valid, so that Decode(Encode(c)) always succeeds.
func Encode(c *Command) ([]byte, error) {
	if err := validate(c); err != nil {
		return nil, err
	}

	result := make([]byte, c.SizeBytes())

	// Write header
	binary.LittleEndian.PutUint32(result[0:4], c.RequestID)
	binary.LittleEndian.PutUint16(result[4:6], uint16(c.Type))
	binary.LittleEndian.PutUint16(result[6:8], uint16(len(c.Fields)))

	// Write field headers, the reserved word stays zero
	pos := common.HeaderSize
	for _, f := range c.Fields {
		binary.LittleEndian.PutUint16(result[pos:pos+2], uint16(f.Type))
		binary.LittleEndian.PutUint32(result[pos+2:pos+6], uint32(len(f.Data)))
		pos += common.FieldHeaderSize
	}

	// Write payloads
	for _, f := range c.Fields {
		copy(result[pos:pos+len(f.Data)], f.Data)
		pos += len(f.Data)
	}

	return result, nil
}

// Decode parses a buffer into a command.
// Either the whole frame validates or an error marked errs.ErrValidation is
// returned; a partially decoded command is never exposed. The returned
// command owns its payloads, data may be reused by the caller afterwards.
func Decode(data []byte) (*Command, error) {
	if len(data) < common.HeaderSize {
		return nil, errs.Validationf("data too short for header: %d < %d bytes", len(data), common.HeaderSize)
	}

	requestID := binary.LittleEndian.Uint32(data[0:4])
	cmdType := common.CommandType(binary.LittleEndian.Uint16(data[4:6]))
	fieldCount := int(binary.LittleEndian.Uint16(data[6:8]))

	if !cmdType.Valid() {
		return nil, errs.Validationf("invalid command type %d", uint16(cmdType))
	}
	if requestID == common.InvalidRequestID && cmdType != common.CmdTPing {
		return nil, errs.Validationf("invalid request id 0 for command %s", cmdType)
	}
	if fieldCount == 0 && cmdType != common.CmdTPing {
		return nil, errs.Validationf("command %s must carry at least one field", cmdType)
	}
	if fieldCount > common.MaxFieldCount {
		return nil, errs.Validationf("too many fields: %d > %d", fieldCount, common.MaxFieldCount)
	}

	headersEnd := common.HeaderSize + fieldCount*common.FieldHeaderSize
	if len(data) < headersEnd {
		return nil, errs.Validationf("data too short for %d field headers: %d < %d bytes", fieldCount, len(data), headersEnd)
	}

	// Bounds check every declared length against the remaining buffer
	// before anything is copied
	type span struct {
		fieldType common.FieldType
		start     int
		end       int
	}
	spans := make([]span, fieldCount)
	payloadPos := uint64(headersEnd)
	for i := 0; i < fieldCount; i++ {
		hdr := data[common.HeaderSize+i*common.FieldHeaderSize:]
		fieldType := common.FieldType(binary.LittleEndian.Uint16(hdr[0:2]))
		dataLen := uint64(binary.LittleEndian.Uint32(hdr[2:6]))

		if !fieldType.Valid() {
			return nil, errs.Validationf("field %d: invalid field type %d", i, uint16(fieldType))
		}
		if payloadPos+dataLen > uint64(len(data)) {
			return nil, errs.Validationf("field %d (%s): declared length %d exceeds buffer (%d bytes left)",
				i, fieldType, dataLen, uint64(len(data))-payloadPos)
		}

		spans[i] = span{fieldType: fieldType, start: int(payloadPos), end: int(payloadPos + dataLen)}
		payloadPos += dataLen
	}

	if payloadPos != uint64(len(data)) {
		return nil, errs.Validationf("%d trailing bytes after last payload", uint64(len(data))-payloadPos)
	}

	// Everything validated, copy payloads into owned buffers
	cmd := &Command{
		RequestID: requestID,
		Type:      cmdType,
	}
	if fieldCount > 0 {
		cmd.Fields = make([]Field, fieldCount)
		for i, s := range spans {
			buf := make([]byte, s.end-s.start)
			copy(buf, data[s.start:s.end])
			cmd.Fields[i] = Field{Type: s.fieldType, Data: buf}
		}
	}

	return cmd, nil
}

// validate checks that a command can be encoded into a decodable frame
func validate(c *Command) error {
	if c == nil {
		return errs.Validationf("command is nil")
	}
	if !c.Type.Valid() {
		return errs.Validationf("invalid command type %d", uint16(c.Type))
	}
	if c.RequestID == common.InvalidRequestID && c.Type != common.CmdTPing {
		return errs.Validationf("invalid request id 0 for command %s", c.Type)
	}
	if len(c.Fields) == 0 && c.Type != common.CmdTPing {
		return errs.Validationf("command %s must carry at least one field", c.Type)
	}
	if len(c.Fields) > common.MaxFieldCount {
		return errs.Validationf("too many fields: %d > %d", len(c.Fields), common.MaxFieldCount)
	}
	for i, f := range c.Fields {
		if !f.Type.Valid() {
			return errs.Validationf("field %d: invalid field type %d", i, uint16(f.Type))
		}
		if uint64(len(f.Data)) > math.MaxUint32 {
			return errs.Validationf("field %d (%s): payload too large (%d bytes)", i, f.Type, len(f.Data))
		}
	}
	return nil
}
