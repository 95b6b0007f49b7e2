package server

import (
	"context"

	"github.com/ValentinKolb/kBridge/lib/ca"
	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// NewCertificateProcessor creates the processor for the certificate
// commands. Revocation checks are answered from the local list kept by crl.
func NewCertificateProcessor(authority ca.Client, crl *ca.CRLRefresher) IProcessor {
	return &certificateProcessor{authority: authority, crl: crl}
}

type certificateProcessor struct {
	authority ca.Client
	crl       *ca.CRLRefresher
}

func (p *certificateProcessor) Commands() []common.CommandType {
	return []common.CommandType{
		common.CmdTCertCreate,
		common.CmdTCertGet,
		common.CmdTCertVerify,
		common.CmdTCertParse,
		common.CmdTCertRevoke,
		common.CmdTCRLInfo,
		common.CmdTCheckIsRevoked,
	}
}

func (p *certificateProcessor) Handle(ctx context.Context, req *codec.Command) (*codec.Command, error) {
	switch req.Type {
	case common.CmdTCertCreate:
		return p.create(ctx, req)
	case common.CmdTCertGet:
		return p.get(ctx, req)
	case common.CmdTCertVerify:
		return p.verify(ctx, req)
	case common.CmdTCertParse:
		return p.parse(req)
	case common.CmdTCertRevoke:
		return p.revoke(ctx, req)
	case common.CmdTCRLInfo:
		return reply(req).
			AppendTime(common.FieldTCRLLast, p.crl.LastRefresh()).
			AppendTime(common.FieldTCRLNext, p.crl.NextRefresh()), nil
	case common.CmdTCheckIsRevoked:
		return p.isRevoked(req)
	default:
		return nil, errs.Validationf("certificate processor cannot handle %s", req.Type)
	}
}

// create expects one identity, one curve and at most one packed key-value
// table of custom data
func (p *certificateProcessor) create(ctx context.Context, req *codec.Command) (*codec.Command, error) {
	identity, err := singleIdentity(req)
	if err != nil {
		return nil, err
	}
	curve, err := singleByte(req, common.FieldTCurveType)
	if err != nil {
		return nil, err
	}

	var customData map[string][]byte
	if raw, ok, err := optional(req, common.FieldTData); err != nil {
		return nil, err
	} else if ok {
		if customData, err = ca.ParseKeyValues(raw); err != nil {
			return nil, err
		}
	}
	for k, v := range customData {
		Logger.Debugf("certificate %q: custom data %s (%d bytes)", identity, k, len(v))
	}

	priv, cert, err := p.authority.Create(ctx, identity, crypto.Curve(curve), customData)
	if err != nil {
		return nil, err
	}
	return reply(req).
		Append(common.FieldTPrivateKey, priv).
		Append(common.FieldTCertificate, cert), nil
}

func (p *certificateProcessor) get(ctx context.Context, req *codec.Command) (*codec.Command, error) {
	identity, err := singleIdentity(req)
	if err != nil {
		return nil, err
	}
	cert, err := p.authority.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	return reply(req).Append(common.FieldTCertificate, cert), nil
}

func (p *certificateProcessor) verify(ctx context.Context, req *codec.Command) (*codec.Command, error) {
	cert, err := single(req, common.FieldTCertificate)
	if err != nil {
		return nil, err
	}
	root, err := single(req, common.FieldTRootCertificate)
	if err != nil {
		return nil, err
	}
	ok, err := p.authority.Verify(ctx, cert, root)
	if err != nil {
		return nil, err
	}
	return result(req, ok), nil
}

func (p *certificateProcessor) parse(req *codec.Command) (*codec.Command, error) {
	cert, err := single(req, common.FieldTCertificate)
	if err != nil {
		return nil, err
	}
	data, err := p.authority.Parse(cert)
	if err != nil {
		return nil, err
	}
	packed, err := ca.PackKeyValues(data)
	if err != nil {
		return nil, err
	}
	return reply(req).Append(common.FieldTData, packed), nil
}

// revoke refreshes the local revocation list right away, so that a revoked
// certificate is reported by the next revocation check
func (p *certificateProcessor) revoke(ctx context.Context, req *codec.Command) (*codec.Command, error) {
	identity, err := singleIdentity(req)
	if err != nil {
		return nil, err
	}
	priv, err := single(req, common.FieldTPrivateKey)
	if err != nil {
		return nil, err
	}
	if err := p.authority.Revoke(ctx, identity, priv); err != nil {
		return nil, err
	}
	if err := p.crl.Refresh(ctx); err != nil {
		Logger.Warningf("CRL refresh after revoking %q failed: %v", identity, err)
	}
	return result(req, true), nil
}

func (p *certificateProcessor) isRevoked(req *codec.Command) (*codec.Command, error) {
	cert, err := single(req, common.FieldTCertificate)
	if err != nil {
		return nil, err
	}
	revoked, err := p.crl.IsRevoked(cert)
	if err != nil {
		return nil, err
	}
	var flag byte
	if revoked {
		flag = 1
	}
	return reply(req).AppendByte(common.FieldTOptional1, flag), nil
}
