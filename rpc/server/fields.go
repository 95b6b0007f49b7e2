package server

import (
	"bytes"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// --------------------------------------------------------------------------
// Request field helpers
// --------------------------------------------------------------------------

// single returns the payload of the one field of type ft, any other count
// is a validation error
func single(req *codec.Command, ft common.FieldType) ([]byte, error) {
	if n := req.Count(ft); n != 1 {
		return nil, errs.Validationf("%s: expected exactly one %s field, got %d", req.Type, ft, n)
	}
	data, _ := req.First(ft)
	return data, nil
}

// optional returns the payload of the field of type ft if present, more
// than one is a validation error
func optional(req *codec.Command, ft common.FieldType) ([]byte, bool, error) {
	if n := req.Count(ft); n > 1 {
		return nil, false, errs.Validationf("%s: expected at most one %s field, got %d", req.Type, ft, n)
	}
	data, ok := req.First(ft)
	return data, ok, nil
}

// singleByte returns the first byte of the one field of type ft
func singleByte(req *codec.Command, ft common.FieldType) (byte, error) {
	data, err := single(req, ft)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, errs.Validationf("%s: %s field is empty", req.Type, ft)
	}
	return data[0], nil
}

// identityOf converts an identity payload to a string. Callers may send the
// identity NUL terminated, everything from the first NUL on is ignored.
func identityOf(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

// singleIdentity returns the one identity of the request
func singleIdentity(req *codec.Command) (string, error) {
	data, err := single(req, common.FieldTIdentity)
	if err != nil {
		return "", err
	}
	id := identityOf(data)
	if id == "" {
		return "", errs.Validationf("%s: identity is empty", req.Type)
	}
	return id, nil
}

// reply creates the response frame of req
func reply(req *codec.Command) *codec.Command {
	return codec.NewCommand(req.Type, req.RequestID)
}

// result creates the one-field result response of req
func result(req *codec.Command, ok bool) *codec.Command {
	code := common.ResultOk
	if !ok {
		code = common.ResultGeneralError
	}
	return codec.NewResult(req.Type, req.RequestID, code)
}
