package base

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T, config common.TransportConfig) (*connTransport, *connTransport) {
	t.Helper()
	a, b := net.Pipe()
	ta := NewConnTransport(a, "test", config).(*connTransport)
	tb := NewConnTransport(b, "test", config).(*connTransport)
	t.Cleanup(func() {
		ta.Close()
		tb.Close()
	})
	return ta, tb
}

func TestSendReceive(t *testing.T) {
	a, b := pipePair(t, common.TransportConfig{})

	received := make(chan []byte, 3)
	b.SetReceiver(func(frame []byte) { received <- frame })
	a.SetReceiver(func([]byte) {})

	frames := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{0xAB}, 4096)}
	for _, f := range frames {
		require.True(t, a.Send(f))
	}

	for i, want := range frames {
		select {
		case got := <-received:
			assert.Equal(t, want, got, "frame %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not received", i)
		}
	}
}

func TestOversizedFrameClosesLink(t *testing.T) {
	a, b := pipePair(t, common.TransportConfig{MaxFrameSize: 16, TimeoutSecond: 1})

	b.SetReceiver(func([]byte) { t.Error("oversized frame must not be delivered") })

	// the reader rejects the header, the frame body is never read
	go a.Send(make([]byte, 17))

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("link not closed after oversized frame")
	}
}

func TestSendAfterClose(t *testing.T) {
	a, _ := pipePair(t, common.TransportConfig{})
	require.NoError(t, a.Close())

	assert.False(t, a.Send([]byte("x")))
	select {
	case <-a.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.NoError(t, a.Close(), "close is idempotent")
}

func TestPeerCloseEndsLink(t *testing.T) {
	a, b := pipePair(t, common.TransportConfig{})
	b.SetReceiver(func([]byte) {})

	require.NoError(t, a.Close())

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer close not noticed")
	}
	assert.False(t, b.Send([]byte("x")))
}

func TestPartialWriteClosesLink(t *testing.T) {
	local, remote := net.Pipe()
	a := NewConnTransport(local, "test", common.TransportConfig{TimeoutSecond: 1}).(*connTransport)
	t.Cleanup(func() {
		a.Close()
		remote.Close()
	})

	// the peer takes the start of the frame and then stops reading
	partial := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 10)
		n, _ := io.ReadFull(remote, buf)
		partial <- buf[:n]
	}()

	require.False(t, a.Send(bytes.Repeat([]byte{0xAB}, 64)), "write deadline must fail the send")
	assert.Len(t, <-partial, 10)

	select {
	case <-a.Done():
	default:
		t.Fatal("link must close after a partial write")
	}

	// a resend must not reach the stream behind the partial frame
	assert.False(t, a.Send(bytes.Repeat([]byte{0xCD}, 64)))
	_, err := readFrame(remote, 0)
	assert.Error(t, err, "the stream ends instead of carrying a misaligned frame")
}
