package tcp

import (
	"testing"
	"time"

	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPLink(t *testing.T) {
	config := common.TransportConfig{
		Type:            common.TransportTCP,
		Endpoint:        "127.0.0.1:0",
		TimeoutSecond:   1,
		TCPNoDelay:      true,
		TCPKeepAliveSec: 10,
	}

	l, err := Listen(config)
	require.NoError(t, err)
	defer l.Close()

	received := make(chan []byte, 1)
	go func() {
		backend, err := l.Accept()
		if err != nil {
			return
		}
		backend.SetReceiver(func(frame []byte) { received <- frame })
	}()

	config.Endpoint = l.Addr()
	caller, err := Dial(config)
	require.NoError(t, err)
	defer caller.Close()
	caller.SetReceiver(func([]byte) {})

	require.True(t, caller.Send([]byte{1, 2, 3}))
	select {
	case got := <-received:
		assert.Equal(t, []byte{1, 2, 3}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
}
