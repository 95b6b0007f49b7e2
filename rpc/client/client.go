package client

import (
	"context"
	"time"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/correlator"
	"github.com/ValentinKolb/kBridge/rpc/dispatcher"
	"github.com/ValentinKolb/kBridge/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	Logger = logger.GetLogger("client")

	tracer = otel.Tracer("github.com/ValentinKolb/kBridge/rpc/client")
)

// Client is the caller side of a link to the backend. It is safe for
// concurrent use; up to config.WaiterSlots calls may be outstanding at once.
type Client struct {
	config     common.ClientConfig
	dispatcher *dispatcher.Dispatcher
	correlator *correlator.Correlator
	timers     gometrics.Registry
}

// New creates a client on an established link and starts receiving.
// The link is owned by the client from now on and closed by Close.
//
// Usage:
//
//	link, err := unix.Dial(config.Transport)
//	if err != nil {
//		return err
//	}
//	c := client.New(ctx, link, config)
//	defer c.Close()
//
//	if err := c.Save(ctx, store.StoreTypeTemporary, "session", data, nil); err != nil {
//		return err
//	}
func New(ctx context.Context, t transport.ITransport, config common.ClientConfig) *Client {
	if config.WaiterSlots < 1 {
		config.WaiterSlots = correlator.DefaultSize
	}

	c := &Client{
		config:     config,
		dispatcher: dispatcher.New(t, dispatcher.ConfigFromLink("caller", config.Link)),
		correlator: correlator.New(config.WaiterSlots, "caller"),
		timers:     gometrics.NewRegistry(),
	}
	c.dispatcher.Register(c.correlator.AsProcessor())
	c.dispatcher.Start(ctx)
	return c
}

// Call sends cmd and waits for the response. A fresh request id is assigned
// to cmd. A GeneralError result is returned as an error whose class follows
// from the command (see failureClass). Timeouts are returned as they are,
// the client never re-sends a request.
func (c *Client) Call(ctx context.Context, cmd *codec.Command) (*codec.Command, error) {
	resp, err := c.roundTrip(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if code, ok := resp.Result(); ok && code == common.ResultGeneralError {
		return nil, errs.Newf(failureClass(cmd.Type), "backend failed %s", cmd.Type)
	}
	return resp, nil
}

// roundTrip is Call without the result code interpretation
func (c *Client) roundTrip(ctx context.Context, cmd *codec.Command) (resp *codec.Command, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "kbridge."+cmd.Type.String(), trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		gometrics.GetOrRegisterTimer(cmd.Type.String(), c.timers).UpdateSince(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if code, ok := resp.Result(); ok {
			span.SetAttributes(attribute.String("kbridge.result", code.String()))
		}
		span.End()
	}()

	id := c.dispatcher.NextRequestID()
	cmd.RequestID = id
	span.SetAttributes(
		attribute.Int64("kbridge.request_id", int64(id)),
		attribute.Int("kbridge.fields", len(cmd.Fields)),
	)

	slot, err := c.correlator.Claim(id)
	if err != nil {
		return nil, err
	}
	if err := c.dispatcher.SendWithID(cmd); err != nil {
		c.correlator.Release(slot)
		return nil, err
	}

	fields, err := c.correlator.Wait(ctx, slot, c.config.CallTimeout())
	if err != nil {
		Logger.Debugf("%s: %v", cmd, err)
		return nil, err
	}
	return &codec.Command{RequestID: id, Type: cmd.Type, Fields: fields}, nil
}

// Timers returns the registry holding one call timer per command type.
func (c *Client) Timers() gometrics.Registry {
	return c.timers
}

// InFlight returns the number of outstanding calls.
func (c *Client) InFlight() int {
	return c.correlator.InFlight()
}

// PeerLost is closed once the backend is considered gone.
func (c *Client) PeerLost() <-chan struct{} {
	return c.dispatcher.PeerLost()
}

// Close closes the link. Outstanding calls run into their timeout.
func (c *Client) Close() error {
	return c.dispatcher.Close()
}

// failureClass maps a GeneralError result to the error class of the command
func failureClass(t common.CommandType) error {
	switch t {
	case common.CmdTStorageLoad, common.CmdTStorageRemove:
		return errs.ErrNotFound
	case common.CmdTStorageStore:
		return errs.ErrValidation
	case common.CmdTKeygen, common.CmdTEncryptPassword, common.CmdTDecryptPassword,
		common.CmdTEncrypt, common.CmdTDecrypt, common.CmdTSign, common.CmdTVerify, common.CmdTHash:
		return errs.ErrCrypto
	case common.CmdTCertCreate, common.CmdTCertGet, common.CmdTCertVerify, common.CmdTCertParse,
		common.CmdTCertRevoke, common.CmdTCRLInfo, common.CmdTCheckIsRevoked:
		return errs.ErrCA
	default:
		return errs.ErrValidation
	}
}

// field returns the first field of type ft of a response
func field(resp *codec.Command, ft common.FieldType) ([]byte, error) {
	data, ok := resp.First(ft)
	if !ok {
		return nil, errs.Validationf("%s response without %s field", resp.Type, ft)
	}
	return data, nil
}
