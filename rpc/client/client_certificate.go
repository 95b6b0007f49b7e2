package client

import (
	"context"
	"time"

	"github.com/ValentinKolb/kBridge/lib/ca"
	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/identifier"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// CreateCertificate creates a key pair of a signing curve and a certificate
// for identity carrying customData.
func (c *Client) CreateCertificate(ctx context.Context, identity string, curve crypto.Curve, customData map[string][]byte) (privateKey, certificate []byte, err error) {
	req := codec.NewCommand(common.CmdTCertCreate, 0).
		AppendString(common.FieldTIdentity, identity).
		AppendByte(common.FieldTCurveType, byte(curve))
	if len(customData) > 0 {
		packed, err := ca.PackKeyValues(customData)
		if err != nil {
			return nil, nil, err
		}
		req.Append(common.FieldTData, packed)
	}

	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if privateKey, err = field(resp, common.FieldTPrivateKey); err != nil {
		return nil, nil, err
	}
	if certificate, err = field(resp, common.FieldTCertificate); err != nil {
		return nil, nil, err
	}
	return privateKey, certificate, nil
}

// Certificate fetches the certificate of identity.
func (c *Client) Certificate(ctx context.Context, identity string) ([]byte, error) {
	resp, err := c.Call(ctx, codec.NewCommand(common.CmdTCertGet, 0).AppendString(common.FieldTIdentity, identity))
	if err != nil {
		return nil, err
	}
	return field(resp, common.FieldTCertificate)
}

// RootCertificate fetches the root certificate of the authority.
func (c *Client) RootCertificate(ctx context.Context) ([]byte, error) {
	return c.Certificate(ctx, identifier.RootID)
}

// VerifyCertificate reports whether certificate was issued by root.
func (c *Client) VerifyCertificate(ctx context.Context, certificate, root []byte) (bool, error) {
	return c.resultCall(ctx, codec.NewCommand(common.CmdTCertVerify, 0).
		Append(common.FieldTCertificate, certificate).
		Append(common.FieldTRootCertificate, root))
}

// ParseCertificate returns the custom data of a certificate together with
// ca.IdentityKey and ca.PublicKeyKey.
func (c *Client) ParseCertificate(ctx context.Context, certificate []byte) (map[string][]byte, error) {
	resp, err := c.Call(ctx, codec.NewCommand(common.CmdTCertParse, 0).Append(common.FieldTCertificate, certificate))
	if err != nil {
		return nil, err
	}
	data, err := field(resp, common.FieldTData)
	if err != nil {
		return nil, err
	}
	return ca.ParseKeyValues(data)
}

// RevokeCertificate revokes the certificate of identity, privateKey must be
// the key issued with it.
func (c *Client) RevokeCertificate(ctx context.Context, identity string, privateKey []byte) error {
	_, err := c.Call(ctx, codec.NewCommand(common.CmdTCertRevoke, 0).
		AppendString(common.FieldTIdentity, identity).
		Append(common.FieldTPrivateKey, privateKey))
	return err
}

// CRLInfo returns the time of the last and the next CRL refresh of the
// backend. A zero last time means no refresh succeeded yet.
func (c *Client) CRLInfo(ctx context.Context) (last, next time.Time, err error) {
	// requests other than ping carry at least one field
	resp, err := c.Call(ctx, codec.NewCommand(common.CmdTCRLInfo, 0).Append(common.FieldTToken, nil))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last, ok := resp.Time(common.FieldTCRLLast)
	if !ok {
		return time.Time{}, time.Time{}, errs.Validationf("%s response without %s field", resp.Type, common.FieldTCRLLast)
	}
	next, ok = resp.Time(common.FieldTCRLNext)
	if !ok {
		return time.Time{}, time.Time{}, errs.Validationf("%s response without %s field", resp.Type, common.FieldTCRLNext)
	}
	return last, next, nil
}

// IsRevoked reports whether certificate is on the backend's revocation list.
func (c *Client) IsRevoked(ctx context.Context, certificate []byte) (bool, error) {
	resp, err := c.Call(ctx, codec.NewCommand(common.CmdTCheckIsRevoked, 0).Append(common.FieldTCertificate, certificate))
	if err != nil {
		return false, err
	}
	flag, err := field(resp, common.FieldTOptional1)
	if err != nil {
		return false, err
	}
	return len(flag) > 0 && flag[0] != 0, nil
}
