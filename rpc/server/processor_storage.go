package server

import (
	"context"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// NewStorageProcessor creates the processor for the storage commands on top
// of a vault.
func NewStorageProcessor(vault *store.Vault) IProcessor {
	return &storageProcessor{vault: vault}
}

type storageProcessor struct {
	vault *store.Vault
}

func (p *storageProcessor) Commands() []common.CommandType {
	return []common.CommandType{
		common.CmdTStorageStore,
		common.CmdTStorageLoad,
		common.CmdTStorageRemove,
	}
}

func (p *storageProcessor) Handle(_ context.Context, req *codec.Command) (*codec.Command, error) {
	switch req.Type {
	case common.CmdTStorageStore:
		return p.save(req)
	case common.CmdTStorageLoad:
		return p.load(req)
	case common.CmdTStorageRemove:
		return p.remove(req)
	default:
		return nil, errs.Validationf("storage processor cannot handle %s", req.Type)
	}
}

// save expects identity, data, key type and an optional password
func (p *storageProcessor) save(req *codec.Command) (*codec.Command, error) {
	id, err := singleIdentity(req)
	if err != nil {
		return nil, err
	}
	data, err := single(req, common.FieldTData)
	if err != nil {
		return nil, err
	}
	storeType, err := keyType(req)
	if err != nil {
		return nil, err
	}
	password, _, err := optional(req, common.FieldTPassword)
	if err != nil {
		return nil, err
	}

	if err := p.vault.Save(storeType, id, data, password); err != nil {
		return nil, err
	}
	return result(req, true), nil
}

// load expects identity, an optional password and an optional key type that
// restricts the lookup to one table
func (p *storageProcessor) load(req *codec.Command) (*codec.Command, error) {
	id, err := singleIdentity(req)
	if err != nil {
		return nil, err
	}
	password, _, err := optional(req, common.FieldTPassword)
	if err != nil {
		return nil, err
	}

	var data []byte
	if req.Count(common.FieldTKeyType) > 0 {
		storeType, err := keyType(req)
		if err != nil {
			return nil, err
		}
		data, err = p.vault.LoadFrom(storeType, id, password)
		if err != nil {
			return nil, err
		}
	} else {
		data, err = p.vault.Load(id, password)
		if err != nil {
			return nil, err
		}
	}

	return reply(req).Append(common.FieldTData, data), nil
}

func (p *storageProcessor) remove(req *codec.Command) (*codec.Command, error) {
	id, err := singleIdentity(req)
	if err != nil {
		return nil, err
	}
	if !p.vault.Remove(id) {
		return nil, errs.NotFoundf("no entry with id %q", id)
	}
	return result(req, true), nil
}

// keyType reads the one u16 key type field of the request
func keyType(req *codec.Command) (store.StoreType, error) {
	if n := req.Count(common.FieldTKeyType); n != 1 {
		return store.StoreTypeUnknown, errs.Validationf("%s: expected exactly one %s field, got %d", req.Type, common.FieldTKeyType, n)
	}
	v, ok := req.Uint16(common.FieldTKeyType)
	if !ok {
		return store.StoreTypeUnknown, errs.Validationf("%s: key type must be a u16", req.Type)
	}
	return store.StoreType(v), nil
}
