package server

import (
	"context"

	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// NewPingProcessor creates the processor answering explicit ping requests.
// The reply echoes every field of the request. Zero-field probes never reach
// it, the dispatcher consumes them.
func NewPingProcessor() IProcessor {
	return pingProcessor{}
}

type pingProcessor struct{}

func (pingProcessor) Commands() []common.CommandType {
	return []common.CommandType{common.CmdTPing}
}

func (pingProcessor) Handle(_ context.Context, req *codec.Command) (*codec.Command, error) {
	resp := reply(req)
	for _, f := range req.Fields {
		resp.Append(f.Type, f.Data)
	}
	return resp, nil
}
