package codec

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/kBridge/rpc/common"
)

// --------------------------------------------------------------------------
// Data Types
// --------------------------------------------------------------------------

// Field is a typed, variable length element of a Command.
// Data may be empty. The codec never keeps references into the buffer a
// Field was decoded from.
type Field struct {
	Type common.FieldType
	Data []byte
}

// Command is one request or response exchanged between a caller and the
// backend. Multiple fields of the same type may coexist; their order is
// preserved by the codec.
type Command struct {
	RequestID uint32
	Type      common.CommandType
	Fields    []Field
}

// --------------------------------------------------------------------------
// Factory Functions
// --------------------------------------------------------------------------

// NewCommand creates an empty command of the given type.
func NewCommand(cmdType common.CommandType, requestID uint32) *Command {
	return &Command{
		RequestID: requestID,
		Type:      cmdType,
	}
}

// NewPing creates the zero-field liveness frame.
func NewPing(requestID uint32) *Command {
	return NewCommand(common.CmdTPing, requestID)
}

// NewResult creates the one-field frame reporting the outcome of an operation.
func NewResult(cmdType common.CommandType, requestID uint32, code common.ResultCode) *Command {
	return NewCommand(cmdType, requestID).AppendUint16(common.FieldTResult, uint16(code))
}

// --------------------------------------------------------------------------
// Builder Methods
// --------------------------------------------------------------------------

// Append adds a field and returns the command for chaining.
func (c *Command) Append(fieldType common.FieldType, data []byte) *Command {
	c.Fields = append(c.Fields, Field{Type: fieldType, Data: data})
	return c
}

// AppendString adds a string field (without terminator).
func (c *Command) AppendString(fieldType common.FieldType, s string) *Command {
	return c.Append(fieldType, []byte(s))
}

// AppendUint16 adds a little endian u16 field.
func (c *Command) AppendUint16(fieldType common.FieldType, v uint16) *Command {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return c.Append(fieldType, b)
}

// AppendByte adds a one byte field.
func (c *Command) AppendByte(fieldType common.FieldType, v byte) *Command {
	return c.Append(fieldType, []byte{v})
}

// AppendTime adds a field holding the unix time in seconds as little endian i64.
func (c *Command) AppendTime(fieldType common.FieldType, t time.Time) *Command {
	b := make([]byte, 8)
	var secs int64
	if !t.IsZero() {
		secs = t.Unix()
	}
	binary.LittleEndian.PutUint64(b, uint64(secs))
	return c.Append(fieldType, b)
}

// --------------------------------------------------------------------------
// Query Methods
// --------------------------------------------------------------------------

// First returns the payload of the first field of the given type.
func (c *Command) First(fieldType common.FieldType) ([]byte, bool) {
	for _, f := range c.Fields {
		if f.Type == fieldType {
			return f.Data, true
		}
	}
	return nil, false
}

// All returns the payloads of all fields of the given type in order.
func (c *Command) All(fieldType common.FieldType) [][]byte {
	var res [][]byte
	for _, f := range c.Fields {
		if f.Type == fieldType {
			res = append(res, f.Data)
		}
	}
	return res
}

// Count returns how many fields of the given type the command carries.
func (c *Command) Count(fieldType common.FieldType) int {
	n := 0
	for _, f := range c.Fields {
		if f.Type == fieldType {
			n++
		}
	}
	return n
}

// Uint16 reads the first field of the given type as little endian u16.
func (c *Command) Uint16(fieldType common.FieldType) (uint16, bool) {
	data, ok := c.First(fieldType)
	if !ok || len(data) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data), true
}

// Time reads the first field of the given type as unix seconds.
func (c *Command) Time(fieldType common.FieldType) (time.Time, bool) {
	data, ok := c.First(fieldType)
	if !ok || len(data) < 8 {
		return time.Time{}, false
	}
	secs := int64(binary.LittleEndian.Uint64(data))
	if secs == 0 {
		return time.Time{}, true
	}
	return time.Unix(secs, 0), true
}

// Result returns the result code carried by the command, if any.
func (c *Command) Result() (common.ResultCode, bool) {
	v, ok := c.Uint16(common.FieldTResult)
	return common.ResultCode(v), ok
}

// IsPing reports whether the command is the zero-field liveness frame.
func (c *Command) IsPing() bool {
	return c.Type == common.CmdTPing && len(c.Fields) == 0
}

// SizeBytes returns the encoded size of the command.
func (c *Command) SizeBytes() int {
	size := common.HeaderSize + len(c.Fields)*common.FieldHeaderSize
	for _, f := range c.Fields {
		size += len(f.Data)
	}
	return size
}

// String returns a short human readable description, payloads are not printed.
func (c *Command) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s#%d[", c.Type, c.RequestID))
	for i, f := range c.Fields {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprintf("%s:%d", f.Type, len(f.Data)))
	}
	sb.WriteString("]")
	return sb.String()
}
