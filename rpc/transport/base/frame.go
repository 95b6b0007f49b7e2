package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// frameHeaderSize is the size of the length prefix in front of every frame
const frameHeaderSize = 4

// writeFrame writes a frame to the connection with the format:
// - 4 bytes: frame length (uint32, little endian)
// - N bytes: frame
func writeFrame(conn net.Conn, frame []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header, uint32(len(frame)))

	// one write for header and frame
	b := net.Buffers{header, frame}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame from the connection. Frames longer than maxSize
// are rejected without reading them, the stream is unusable afterwards.
func readFrame(conn net.Conn, maxSize int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[:])
	if maxSize > 0 && uint64(length) > uint64(maxSize) {
		return nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", length, maxSize)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(conn, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
