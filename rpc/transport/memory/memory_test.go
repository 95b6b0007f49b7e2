package memory

import (
	"testing"
	"time"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPair(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()

	got := make(chan []byte, 1)
	b.SetReceiver(func(frame []byte) { got <- frame })
	a.SetReceiver(func([]byte) {})

	require.True(t, a.Send([]byte("ping")))
	select {
	case frame := <-got:
		assert.Equal(t, "ping", string(frame))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
}

func TestListener(t *testing.T) {
	l := NewListener()

	accepted := make(chan struct{})
	go func() {
		backend, err := l.Accept()
		if err == nil {
			backend.SetReceiver(func([]byte) {})
			close(accepted)
		}
	}()

	caller, err := l.Dial()
	require.NoError(t, err)
	defer caller.Close()
	<-accepted

	require.NoError(t, l.Close())
	_, err = l.Accept()
	assert.Error(t, err)
	_, err = l.Dial()
	assert.True(t, errs.Is(err, errs.ErrTransport))
}
