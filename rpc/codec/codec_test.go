package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// assertSameCommand compares two commands treating nil and empty payloads as equal
func assertSameCommand(t require.TestingT, want, got *Command) {
	require.Equal(t, want.RequestID, got.RequestID)
	require.Equal(t, want.Type, got.Type)
	require.Equal(t, len(want.Fields), len(got.Fields))
	for i := range want.Fields {
		require.Equal(t, want.Fields[i].Type, got.Fields[i].Type, "field %d", i)
		require.True(t, bytes.Equal(want.Fields[i].Data, got.Fields[i].Data), "field %d payload", i)
	}
}

func manyFields(n int) *Command {
	cmd := NewCommand(common.CmdTEncrypt, 42)
	for i := 0; i < n; i++ {
		ft := common.FieldType(1 + i%int(common.FieldTMax-1))
		cmd.Append(ft, bytes.Repeat([]byte{byte(i)}, i*7))
	}
	return cmd
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  *Command
	}{
		{"ping", NewPing(0)},
		{"ping with id", NewPing(77)},
		{"result ok", NewResult(common.CmdTStorageStore, 3, common.ResultOk)},
		{"result error", NewResult(common.CmdTCertVerify, 4, common.ResultGeneralError)},
		{"zero length payload", NewCommand(common.CmdTHash, 5).Append(common.FieldTData, nil)},
		{"max payload", NewCommand(common.CmdTStorageStore, 6).
			AppendString(common.FieldTIdentity, "PRIV_0123456789ABCDEF").
			Append(common.FieldTData, bytes.Repeat([]byte{0xAB}, 2048))},
		{"duplicate field types", NewCommand(common.CmdTEncrypt, 7).
			AppendString(common.FieldTIdentity, "a").
			AppendString(common.FieldTIdentity, "b").
			Append(common.FieldTData, []byte("payload"))},
		{"fifty fields", manyFields(common.MaxFieldCount)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Encode(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd.SizeBytes(), len(buf))

			decoded, err := Decode(buf)
			require.NoError(t, err)
			assertSameCommand(t, tt.cmd, decoded)
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	cmd := NewCommand(common.CmdTSign, 0x01020304).
		Append(common.FieldTPrivateKey, []byte{1, 2}).
		Append(common.FieldTData, []byte{3, 4, 5})

	buf, err := Encode(cmd)
	require.NoError(t, err)
	require.Len(t, buf, 8+2*14+5)

	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint16(common.CmdTSign), binary.LittleEndian.Uint16(buf[4:6]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(buf[6:8]))

	// first field header
	assert.Equal(t, uint16(common.FieldTPrivateKey), binary.LittleEndian.Uint16(buf[8:10]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[10:14]))
	assert.Equal(t, make([]byte, 8), buf[14:22])

	// second field header
	assert.Equal(t, uint16(common.FieldTData), binary.LittleEndian.Uint16(buf[22:24]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[24:28]))

	// payloads in header order
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf[36:])
}

func TestDecodeRejects(t *testing.T) {
	valid, err := Encode(NewCommand(common.CmdTHash, 9).
		AppendByte(common.FieldTHashFunc, 2).
		Append(common.FieldTData, []byte("hello")))
	require.NoError(t, err)

	mutate := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), valid...)
		return f(b)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty buffer", nil},
		{"short header", []byte{1, 0, 0, 0, 9, 0}},
		{"command type zero", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[4:6], 0)
			return b
		})},
		{"command type max", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[4:6], uint16(common.CmdTMax))
			return b
		})},
		{"request id zero", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[0:4], 0)
			return b
		})},
		{"zero fields on non control command", func() []byte {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint32(b[0:4], 1)
			binary.LittleEndian.PutUint16(b[4:6], uint16(common.CmdTHash))
			return b
		}()},
		{"field type zero", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[8:10], 0)
			return b
		})},
		{"field type max", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[22:24], uint16(common.FieldTMax))
			return b
		})},
		{"truncated field headers", valid[:8+14]},
		{"truncated payload", valid[:len(valid)-1]},
		{"declared length past end", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[24:28], 0xFFFFFFFF)
			return b
		})},
		{"trailing bytes", append(append([]byte(nil), valid...), 0)},
		{"too many fields", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[6:8], common.MaxFieldCount+1)
			return b
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode(tt.data)
			assert.Nil(t, cmd)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrValidation), "unexpected class: %v", err)
		})
	}
}

func TestDecodeCopiesPayloads(t *testing.T) {
	buf, err := Encode(NewCommand(common.CmdTHash, 1).Append(common.FieldTData, []byte("abc")))
	require.NoError(t, err)

	cmd, err := Decode(buf)
	require.NoError(t, err)

	// reuse the receive buffer
	for i := range buf {
		buf[i] = 0xFF
	}
	data, ok := cmd.First(common.FieldTData)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), data)
}

func TestEncodeRejectsInvalidCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  *Command
	}{
		{"nil", nil},
		{"invalid type", NewCommand(common.CmdTInvalid, 1).Append(common.FieldTData, nil)},
		{"no fields", NewCommand(common.CmdTSign, 1)},
		{"invalid field", NewCommand(common.CmdTSign, 1).Append(common.FieldTInvalid, nil)},
		{"request id zero", NewCommand(common.CmdTSign, 0).Append(common.FieldTData, nil)},
		{"too many fields", manyFields(common.MaxFieldCount + 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.cmd)
			assert.True(t, errs.Is(err, errs.ErrValidation))
		})
	}
}

func TestCommandAccessors(t *testing.T) {
	cmd := NewCommand(common.CmdTEncrypt, 1).
		AppendString(common.FieldTIdentity, "a").
		Append(common.FieldTPublicKey, []byte{1}).
		AppendString(common.FieldTIdentity, "b").
		AppendUint16(common.FieldTKeyType, 2)

	first, ok := cmd.First(common.FieldTIdentity)
	require.True(t, ok)
	assert.Equal(t, "a", string(first))
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, cmd.All(common.FieldTIdentity))
	assert.Equal(t, 2, cmd.Count(common.FieldTIdentity))

	v, ok := cmd.Uint16(common.FieldTKeyType)
	require.True(t, ok)
	assert.Equal(t, uint16(2), v)

	_, ok = cmd.First(common.FieldTSignature)
	assert.False(t, ok)
	_, ok = cmd.Result()
	assert.False(t, ok)

	res, ok := NewResult(common.CmdTVerify, 2, common.ResultGeneralError).Result()
	require.True(t, ok)
	assert.Equal(t, common.ResultGeneralError, res)
	assert.True(t, NewPing(0).IsPing())
}

// genCommand draws an arbitrary valid command
func genCommand(t *rapid.T) *Command {
	cmdType := common.CommandType(rapid.Uint16Range(1, uint16(common.CmdTMax)-1).Draw(t, "type"))
	minFields := 1
	if cmdType == common.CmdTPing {
		minFields = 0
	}
	n := rapid.IntRange(minFields, common.MaxFieldCount).Draw(t, "fields")
	cmd := NewCommand(cmdType, rapid.Uint32Range(1, ^uint32(0)).Draw(t, "id"))
	for i := 0; i < n; i++ {
		ft := common.FieldType(rapid.Uint16Range(1, uint16(common.FieldTMax)-1).Draw(t, "fieldType"))
		cmd.Append(ft, rapid.SliceOfN(rapid.Byte(), 0, 2048).Draw(t, "payload"))
	}
	return cmd
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cmd := genCommand(t)
		buf, err := Encode(cmd)
		require.NoError(t, err)
		decoded, err := Decode(buf)
		require.NoError(t, err)
		assertSameCommand(t, cmd, decoded)
	})
}

func TestTruncationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cmd := genCommand(t)
		buf, err := Encode(cmd)
		require.NoError(t, err)
		if len(buf) == 0 {
			return
		}
		cut := rapid.IntRange(0, len(buf)-1).Draw(t, "cut")
		_, err = Decode(buf[:cut])
		require.Error(t, err)
		require.True(t, errs.Is(err, errs.ErrValidation))
	})
}
