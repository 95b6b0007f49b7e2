// Package dispatcher moves commands between the codec and a transport link.
//
// Outbound, it allocates request ids, encodes commands and hands the frames
// to the transport with a bounded number of retries. Inbound, frames pushed
// by the transport's read loop are queued and routed by a single goroutine:
// each decoded command is offered to the registered processors in
// registration order until one reports it handled. Frames that fail to
// decode are dropped.
//
// A dispatcher also keeps the link alive. It emits a probe frame every probe
// interval and reports the peer lost through PeerLost when nothing was
// received for a configurable number of intervals. Restarting the peer is
// left to whoever supervises the process.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/util"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("dispatcher")

// --------------------------------------------------------------------------
// Processor
// --------------------------------------------------------------------------

// Processor consumes received commands. Process returns whether the command
// was handled; unhandled commands are offered to the next processor.
type Processor interface {
	Process(cmd *codec.Command) bool
}

// ProcessorFunc adapts a function to the Processor interface
type ProcessorFunc func(cmd *codec.Command) bool

func (f ProcessorFunc) Process(cmd *codec.Command) bool {
	return f(cmd)
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

// Dispatcher owns one transport link. It is safe for concurrent use.
type Dispatcher struct {
	transport transport.ITransport
	config    Config

	nextID atomic.Uint32

	mu         sync.RWMutex
	processors []Processor

	inbox    *util.Queue[[]byte]
	lastSeen atomic.Int64 // unix nanos of the last received frame

	lost     chan struct{}
	lostOnce sync.Once

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	sent      *metrics.Counter
	retries   *metrics.Counter
	failures  *metrics.Counter
	dropped   *metrics.Counter
	unhandled *metrics.Counter
	probes    *metrics.Counter
	peerLost  *metrics.Counter
}

// New creates a dispatcher for the transport. Nothing is received before
// Start.
func New(t transport.ITransport, config Config) *Dispatcher {
	if config.Name == "" {
		config.Name = "default"
	}
	if config.SendAttempts < 1 {
		config.SendAttempts = 1
	}
	if config.ProbeMisses < 1 {
		config.ProbeMisses = 1
	}

	counter := func(name string) *metrics.Counter {
		return metrics.GetOrCreateCounter(fmt.Sprintf(`kbridge_dispatcher_%s{name=%q}`, name, config.Name))
	}

	d := &Dispatcher{
		transport: t,
		config:    config,
		inbox:     util.NewQueue[[]byte](),
		lost:      make(chan struct{}),

		sent:      counter("frames_sent_total"),
		retries:   counter("send_retries_total"),
		failures:  counter("send_failures_total"),
		dropped:   counter("frames_dropped_total"),
		unhandled: counter("frames_unhandled_total"),
		probes:    counter("probes_sent_total"),
		peerLost:  counter("peer_lost_total"),
	}
	d.nextID.Store(util.GenerateSeed())
	d.lastSeen.Store(time.Now().UnixNano())
	return d
}

// Register appends a processor. Processors are consulted in registration order.
func (d *Dispatcher) Register(p Processor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processors = append(d.processors, p)
}

// --------------------------------------------------------------------------
// Outbound
// --------------------------------------------------------------------------

// NextRequestID allocates a request id. The counter wraps around and never
// yields the reserved id 0.
func (d *Dispatcher) NextRequestID() uint32 {
	for {
		if id := d.nextID.Add(1); id != common.InvalidRequestID {
			return id
		}
	}
}

// Send assigns a fresh request id to cmd and sends it.
func (d *Dispatcher) Send(cmd *codec.Command) (uint32, error) {
	cmd.RequestID = d.NextRequestID()
	return cmd.RequestID, d.SendWithID(cmd)
}

// SendWithID sends cmd with the request id it already carries, e.g. a reply
// to a received request. Encoding errors are returned as they are; a frame
// the transport refused on every attempt yields an errs.ErrTransport error.
func (d *Dispatcher) SendWithID(cmd *codec.Command) error {
	frame, err := codec.Encode(cmd)
	if err != nil {
		return err
	}

	attempt := 0
	op := func() error {
		attempt++
		if d.transport.Send(frame) {
			return nil
		}
		select {
		case <-d.transport.Done():
			return backoff.Permanent(errs.Transportf("link is closed"))
		default:
			return errs.Transportf("transport refused frame (attempt %d/%d)", attempt, d.config.SendAttempts)
		}
	}

	notify := func(err error, wait time.Duration) {
		d.retries.Inc()
		Logger.Debugf("%s: resending %s in %s: %v", d.config.Name, cmd, wait, err)
	}

	if err := backoff.RetryNotify(op, d.newBackOff(), notify); err != nil {
		d.failures.Inc()
		Logger.Warningf("%s: giving up on %s after %d attempts: %v", d.config.Name, cmd, attempt, err)
		return errs.Wrapf(errs.ErrTransport, err, "send %s", cmd.Type)
	}

	d.sent.Inc()
	return nil
}

// newBackOff returns the retry schedule of one send
func (d *Dispatcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.RetryInterval
	b.MaxInterval = 50 * d.config.RetryInterval
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(d.config.SendAttempts-1))
}

// --------------------------------------------------------------------------
// Inbound
// --------------------------------------------------------------------------

// OnReceive decodes and routes one frame synchronously. Start wires it to
// the transport through the receive queue.
func (d *Dispatcher) OnReceive(frame []byte) {
	cmd, err := codec.Decode(frame)
	if err != nil {
		d.dropped.Inc()
		Logger.Warningf("%s: dropping undecodable frame of %d bytes: %v", d.config.Name, len(frame), err)
		return
	}

	if cmd.IsPing() {
		return
	}

	d.mu.RLock()
	processors := d.processors
	d.mu.RUnlock()

	for _, p := range processors {
		if p.Process(cmd) {
			return
		}
	}

	d.unhandled.Inc()
	Logger.Debugf("%s: no processor handled %s", d.config.Name, cmd)
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start begins receiving and probing. It returns immediately; the background
// work stops with ctx or Close.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		ctx, d.cancel = context.WithCancel(ctx)

		d.transport.SetReceiver(func(frame []byte) {
			d.lastSeen.Store(time.Now().UnixNano())
			if !d.inbox.Push(frame) {
				d.dropped.Inc()
			}
		})

		d.wg.Add(2)
		go d.route()
		go d.watch(ctx)
	})
}

// PeerLost is closed once the peer is considered gone: the link broke or
// nothing arrived for ProbeMisses probe intervals.
func (d *Dispatcher) PeerLost() <-chan struct{} {
	return d.lost
}

// Close stops the background work and closes the transport.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		err = d.transport.Close()
		d.inbox.Close()
		d.wg.Wait()
	})
	return err
}

// route is the single consumer of the receive queue
func (d *Dispatcher) route() {
	defer d.wg.Done()
	for frame := range d.inbox.Recv() {
		d.OnReceive(frame)
	}
}

// watch emits probes and detects peer loss
func (d *Dispatcher) watch(ctx context.Context) {
	defer d.wg.Done()

	var tick <-chan time.Time
	if d.config.ProbeInterval > 0 {
		ticker := time.NewTicker(d.config.ProbeInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	silence := time.Duration(d.config.ProbeMisses) * d.config.ProbeInterval

	for {
		select {
		case <-ctx.Done():
			return

		case <-d.transport.Done():
			d.reportLost("link closed")
			return

		case <-tick:
			d.probe()

			since := time.Since(time.Unix(0, d.lastSeen.Load()))
			if since > silence {
				d.reportLost(fmt.Sprintf("nothing received for %s", since.Truncate(time.Millisecond)))
				return
			}
		}
	}
}

// probe sends one liveness frame, a refused probe is not retried
func (d *Dispatcher) probe() {
	frame, err := codec.Encode(codec.NewPing(common.InvalidRequestID))
	if err != nil {
		Logger.Errorf("%s: failed to encode probe: %v", d.config.Name, err)
		return
	}
	if d.transport.Send(frame) {
		d.probes.Inc()
	}
}

func (d *Dispatcher) reportLost(reason string) {
	d.lostOnce.Do(func() {
		d.peerLost.Inc()
		Logger.Warningf("%s: peer lost: %s", d.config.Name, reason)
		close(d.lost)
	})
}
