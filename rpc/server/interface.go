package server

import (
	"context"

	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// IProcessor is the interface all server processors must implement.
// A processor owns a fixed set of command types and translates requests of
// those types into calls of one backend service (key store, crypto provider,
// certificate authority).
type IProcessor interface {
	// Commands returns the command types the processor handles. Each type may
	// be owned by one processor only.
	Commands() []common.CommandType

	// Handle processes a request and returns the reply. The reply carries the
	// request's id and command type. A returned error is answered with a
	// GeneralError result frame by the server.
	Handle(ctx context.Context, req *codec.Command) (*codec.Command, error)
}
