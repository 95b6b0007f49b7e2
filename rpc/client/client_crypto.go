package client

import (
	"context"

	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// Keygen creates a key pair on the backend.
func (c *Client) Keygen(ctx context.Context, curve crypto.Curve) (privateKey, publicKey []byte, err error) {
	resp, err := c.Call(ctx, codec.NewCommand(common.CmdTKeygen, 0).AppendByte(common.FieldTCurveType, byte(curve)))
	if err != nil {
		return nil, nil, err
	}
	if privateKey, err = field(resp, common.FieldTPrivateKey); err != nil {
		return nil, nil, err
	}
	if publicKey, err = field(resp, common.FieldTPublicKey); err != nil {
		return nil, nil, err
	}
	return privateKey, publicKey, nil
}

func (c *Client) EncryptPassword(ctx context.Context, password, data []byte) ([]byte, error) {
	return c.dataCall(ctx, codec.NewCommand(common.CmdTEncryptPassword, 0).
		Append(common.FieldTPassword, password).
		Append(common.FieldTData, data))
}

func (c *Client) DecryptPassword(ctx context.Context, password, data []byte) ([]byte, error) {
	return c.dataCall(ctx, codec.NewCommand(common.CmdTDecryptPassword, 0).
		Append(common.FieldTPassword, password).
		Append(common.FieldTData, data))
}

// Encrypt seals data for recipients given by public key and identity.
func (c *Client) Encrypt(ctx context.Context, data []byte, recipients []crypto.Recipient) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errs.Validationf("encrypt needs at least one recipient")
	}
	req := codec.NewCommand(common.CmdTEncrypt, 0).Append(common.FieldTData, data)
	for _, r := range recipients {
		req.Append(common.FieldTPublicKey, r.PublicKey).AppendString(common.FieldTIdentity, r.Identity)
	}
	return c.dataCall(ctx, req)
}

// EncryptFor seals data for the holders of the certificates. Each holder
// decrypts with the identity of its certificate.
func (c *Client) EncryptFor(ctx context.Context, data []byte, certificates ...[]byte) ([]byte, error) {
	if len(certificates) == 0 {
		return nil, errs.Validationf("encrypt needs at least one certificate")
	}
	req := codec.NewCommand(common.CmdTEncrypt, 0).Append(common.FieldTData, data)
	for _, cert := range certificates {
		req.Append(common.FieldTCertificate, cert)
	}
	return c.dataCall(ctx, req)
}

func (c *Client) Decrypt(ctx context.Context, identity string, privateKey, data []byte) ([]byte, error) {
	return c.dataCall(ctx, codec.NewCommand(common.CmdTDecrypt, 0).
		Append(common.FieldTPrivateKey, privateKey).
		Append(common.FieldTData, data).
		AppendString(common.FieldTIdentity, identity))
}

func (c *Client) Sign(ctx context.Context, privateKey, data []byte) ([]byte, error) {
	resp, err := c.Call(ctx, codec.NewCommand(common.CmdTSign, 0).
		Append(common.FieldTPrivateKey, privateKey).
		Append(common.FieldTData, data))
	if err != nil {
		return nil, err
	}
	return field(resp, common.FieldTSignature)
}

// Verify checks signature against a public key. A mismatch is reported as
// false without error.
func (c *Client) Verify(ctx context.Context, publicKey, data, signature []byte) (bool, error) {
	return c.resultCall(ctx, codec.NewCommand(common.CmdTVerify, 0).
		Append(common.FieldTData, data).
		Append(common.FieldTSignature, signature).
		Append(common.FieldTPublicKey, publicKey))
}

// VerifyWithCertificate checks signature against the key of a certificate.
func (c *Client) VerifyWithCertificate(ctx context.Context, certificate, data, signature []byte) (bool, error) {
	return c.resultCall(ctx, codec.NewCommand(common.CmdTVerify, 0).
		Append(common.FieldTData, data).
		Append(common.FieldTSignature, signature).
		Append(common.FieldTCertificate, certificate))
}

func (c *Client) Hash(ctx context.Context, fn crypto.HashFunc, data []byte) ([]byte, error) {
	return c.dataCall(ctx, codec.NewCommand(common.CmdTHash, 0).
		AppendByte(common.FieldTHashFunc, byte(fn)).
		Append(common.FieldTData, data))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// dataCall returns the data field of the response
func (c *Client) dataCall(ctx context.Context, req *codec.Command) ([]byte, error) {
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return field(resp, common.FieldTData)
}

// resultCall is used by the verify style commands, whose GeneralError
// result means "does not verify"
func (c *Client) resultCall(ctx context.Context, req *codec.Command) (bool, error) {
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return false, err
	}
	code, ok := resp.Result()
	if !ok {
		return false, errs.Validationf("%s response without result", req.Type)
	}
	return code == common.ResultOk, nil
}
