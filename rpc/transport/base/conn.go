package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// connTransport carries length prefixed frames over a stream connection
type connTransport struct {
	conn         net.Conn
	name         string
	writeTimeout time.Duration
	maxFrameSize int

	writeMu   sync.Mutex // one frame at a time on the wire
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	receiver  transport.ReceiveFunc

	sent     *metrics.Counter
	failed   *metrics.Counter
	received *metrics.Counter
}

// -----------------------------------------------------------
// Transport Factory Method (used for unix, tcp, memory)
// -----------------------------------------------------------

// NewConnTransport wraps an established stream connection. name labels the
// log lines and metrics of the transport (e.g. "unix").
func NewConnTransport(conn net.Conn, name string, config common.TransportConfig) transport.ITransport {
	maxFrameSize := config.MaxFrameSize
	if maxFrameSize <= 0 {
		maxFrameSize = common.DefaultMaxFrameSize
	}

	return &connTransport{
		conn:         conn,
		name:         name,
		writeTimeout: time.Duration(config.TimeoutSecond) * time.Second,
		maxFrameSize: maxFrameSize,
		done:         make(chan struct{}),

		sent:     metrics.GetOrCreateCounter(fmt.Sprintf(`kbridge_transport_frames_sent_total{transport=%q}`, name)),
		failed:   metrics.GetOrCreateCounter(fmt.Sprintf(`kbridge_transport_send_failures_total{transport=%q}`, name)),
		received: metrics.GetOrCreateCounter(fmt.Sprintf(`kbridge_transport_frames_received_total{transport=%q}`, name)),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ITransport)
// --------------------------------------------------------------------------

func (t *connTransport) Send(frame []byte) bool {
	if t.closed.Load() {
		t.failed.Inc()
		return false
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			Logger.Errorf("%s: failed to set write deadline: %v", t.name, err)
			t.failed.Inc()
			t.Close()
			return false
		}
	}

	// part of the frame may be on the stream already, the peer can not
	// resynchronize, so the link is closed instead of allowing a resend
	if err := writeFrame(t.conn, frame); err != nil {
		Logger.Warningf("%s: failed to write frame of %d bytes, closing link: %v", t.name, len(frame), err)
		t.failed.Inc()
		t.Close()
		return false
	}

	t.sent.Inc()
	return true
}

func (t *connTransport) SetReceiver(fn transport.ReceiveFunc) {
	t.startOnce.Do(func() {
		t.receiver = fn
		go t.readFrames()
	})
}

func (t *connTransport) Done() <-chan struct{} {
	return t.done
}

func (t *connTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.conn.Close()
		close(t.done)
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readFrames reads frames until the connection breaks and hands them to the
// receiver
func (t *connTransport) readFrames() {
	defer t.Close()

	for {
		frame, err := readFrame(t.conn, t.maxFrameSize)

		// Case EOF: Connection closed by peer
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			Logger.Infof("%s: connection closed by peer", t.name)
			return
		}

		// Case error: log and close connection
		if err != nil {
			if !t.closed.Load() {
				Logger.Errorf("%s: error reading frame: %v", t.name, err)
			}
			return
		}

		t.received.Inc()
		t.receiver(frame)
	}
}
