// Package correlator matches asynchronous responses to the goroutines waiting
// for them.
//
// A caller claims a slot for the request id it is about to send, hands the
// request to the dispatcher and blocks in Wait. The dispatcher's receive path
// delivers every response through Deliver (usually via AsProcessor), which
// wakes the waiter holding the matching id. Responses may arrive in any order.
//
// The pool is bounded. When every slot is claimed, Claim fails with a
// capacity error and the caller is expected to back off and retry.
package correlator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("correlator")

const (
	// DefaultSize is the number of waiter slots of a correlator
	DefaultSize = 100
	// DefaultTimeout bounds Wait when the caller passes no timeout
	DefaultTimeout = 15 * time.Second
)

// Slot is the handle of one claimed waiter slot. It is valid until the Wait
// or Release that frees it returns.
type Slot struct {
	index     int
	requestID uint32
	ready     chan []codec.Field
}

// RequestID returns the request id the slot was claimed for.
func (s *Slot) RequestID() uint32 {
	return s.requestID
}

// Correlator is a fixed size pool of waiter slots.
//
// Claim, Deliver and the release at the end of Wait are serialized by a single
// mutex, so a response racing a timeout is either delivered to the waiter or
// rejected, never handed to a later claimant of the same slot.
type Correlator struct {
	mu    sync.Mutex
	slots []*Slot          // nil entries are free
	byID  map[uint32]*Slot // live claims
	free  []int            // stack of free slot indices

	claims    *metrics.Counter
	timeouts  *metrics.Counter
	late      *metrics.Counter
	exhausted *metrics.Counter
}

// New creates a correlator with size slots. A size <= 0 selects DefaultSize.
// name labels the metrics of this instance.
func New(size int, name string) *Correlator {
	if size <= 0 {
		size = DefaultSize
	}
	if name == "" {
		name = "default"
	}

	c := &Correlator{
		slots: make([]*Slot, size),
		byID:  make(map[uint32]*Slot, size),
		free:  make([]int, 0, size),

		claims:    metrics.GetOrCreateCounter(fmt.Sprintf(`kbridge_correlator_claims_total{name=%q}`, name)),
		timeouts:  metrics.GetOrCreateCounter(fmt.Sprintf(`kbridge_correlator_timeouts_total{name=%q}`, name)),
		late:      metrics.GetOrCreateCounter(fmt.Sprintf(`kbridge_correlator_late_deliveries_total{name=%q}`, name)),
		exhausted: metrics.GetOrCreateCounter(fmt.Sprintf(`kbridge_correlator_capacity_errors_total{name=%q}`, name)),
	}
	for i := size - 1; i >= 0; i-- {
		c.free = append(c.free, i)
	}
	return c
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Claim reserves a free slot for requestID.
// It fails with errs.ErrCapacity when all slots are in use and with
// errs.ErrValidation when requestID is already waited for.
func (c *Correlator) Claim(requestID uint32) (*Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[requestID]; ok {
		return nil, errs.Validationf("request id %d is already in flight", requestID)
	}
	if len(c.free) == 0 {
		c.exhausted.Inc()
		return nil, errs.Capacityf("all %d waiter slots are in use", len(c.slots))
	}

	index := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]

	// a fresh channel per claim: nothing a previous claimant left behind can leak in
	slot := &Slot{
		index:     index,
		requestID: requestID,
		ready:     make(chan []codec.Field, 1),
	}
	c.slots[index] = slot
	c.byID[requestID] = slot
	c.claims.Inc()

	return slot, nil
}

// Deliver hands fields to the waiter of requestID. It returns false if no
// live claim matches, which is the normal outcome for late and duplicate
// responses.
func (c *Correlator) Deliver(requestID uint32, fields []codec.Field) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.byID[requestID]
	if !ok {
		c.late.Inc()
		Logger.Debugf("dropping response for request %d: no waiter", requestID)
		return false
	}

	select {
	case slot.ready <- fields:
		return true
	default:
		// the waiter was already signalled
		c.late.Inc()
		Logger.Debugf("dropping duplicate response for request %d", requestID)
		return false
	}
}

// Wait blocks until the response for slot arrives, the timeout elapses or ctx
// is done. The slot is released on every outcome. A timeout <= 0 selects
// DefaultTimeout.
func (c *Correlator) Wait(ctx context.Context, slot *Slot, timeout time.Duration) ([]codec.Field, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	defer c.Release(slot)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fields := <-slot.ready:
		return fields, nil
	case <-timer.C:
	case <-ctx.Done():
		if errs.Is(ctx.Err(), context.DeadlineExceeded) {
			break
		}
		return nil, errs.Wrapf(errs.ErrTimeout, ctx.Err(), "waiting for request %d", slot.requestID)
	}

	// a response may have raced the timer, prefer it
	c.mu.Lock()
	select {
	case fields := <-slot.ready:
		c.mu.Unlock()
		return fields, nil
	default:
	}
	c.release(slot)
	c.mu.Unlock()

	c.timeouts.Inc()
	return nil, errs.Timeoutf("no response for request %d within %s", slot.requestID, timeout)
}

// Release frees slot without waiting. It is a no-op if the slot was already
// released. Callers use it when sending the request failed after Claim.
func (c *Correlator) Release(slot *Slot) {
	c.mu.Lock()
	c.release(slot)
	c.mu.Unlock()
}

// release requires c.mu
func (c *Correlator) release(slot *Slot) {
	if slot == nil || c.slots[slot.index] != slot {
		return
	}
	c.slots[slot.index] = nil
	delete(c.byID, slot.requestID)
	c.free = append(c.free, slot.index)
}

// InFlight returns the number of claimed slots.
func (c *Correlator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Size returns the number of slots.
func (c *Correlator) Size() int {
	return len(c.slots)
}

// --------------------------------------------------------------------------
// Dispatcher Integration
// --------------------------------------------------------------------------

// Processor is the shape of a dispatcher processor.
type Processor interface {
	Process(cmd *codec.Command) bool
}

type processor struct {
	c *Correlator
}

// AsProcessor returns a processor that delivers every received command to its
// waiter and reports it handled if a waiter was found.
func (c *Correlator) AsProcessor() Processor {
	return processor{c: c}
}

func (p processor) Process(cmd *codec.Command) bool {
	return p.c.Deliver(cmd.RequestID, cmd.Fields)
}
