package client

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/lib/identifier"
	"github.com/ValentinKolb/kBridge/lib/store"
	"github.com/ValentinKolb/kBridge/lib/util"
	"github.com/ValentinKolb/kBridge/rpc/codec"
	"github.com/ValentinKolb/kBridge/rpc/common"
)

// Ping sends an explicit ping carrying a random token and returns the round
// trip time once the backend echoed the token.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	token := make([]byte, 4)
	binary.LittleEndian.PutUint32(token, util.GenerateSeed())

	start := time.Now()
	resp, err := c.Call(ctx, codec.NewCommand(common.CmdTPing, 0).Append(common.FieldTToken, token))
	if err != nil {
		return 0, err
	}
	echo, err := field(resp, common.FieldTToken)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(echo, token) {
		return 0, errs.Transportf("ping answered with a foreign token")
	}
	return time.Since(start), nil
}

// Save stores data in the selected table. A non-empty password makes the
// backend store the data encrypted.
func (c *Client) Save(ctx context.Context, t store.StoreType, id string, data, password []byte) error {
	req := codec.NewCommand(common.CmdTStorageStore, 0).
		AppendString(common.FieldTIdentity, id).
		Append(common.FieldTData, data).
		AppendUint16(common.FieldTKeyType, uint16(t))
	if len(password) > 0 {
		req.Append(common.FieldTPassword, password)
	}
	_, err := c.Call(ctx, req)
	return err
}

// Load returns the data stored under id, looking in the temporary table
// first.
func (c *Client) Load(ctx context.Context, id string, password []byte) ([]byte, error) {
	return c.load(ctx, store.StoreTypeUnknown, id, password)
}

// LoadFrom returns the data stored under id in the selected table.
func (c *Client) LoadFrom(ctx context.Context, t store.StoreType, id string, password []byte) ([]byte, error) {
	if t == store.StoreTypeUnknown {
		return nil, errs.Validationf("invalid store type %s", t)
	}
	return c.load(ctx, t, id, password)
}

func (c *Client) load(ctx context.Context, t store.StoreType, id string, password []byte) ([]byte, error) {
	req := codec.NewCommand(common.CmdTStorageLoad, 0).AppendString(common.FieldTIdentity, id)
	if t != store.StoreTypeUnknown {
		req.AppendUint16(common.FieldTKeyType, uint16(t))
	}
	if len(password) > 0 {
		req.Append(common.FieldTPassword, password)
	}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return field(resp, common.FieldTData)
}

// Remove deletes id from both tables. Removing an unknown id is an
// errs.ErrNotFound error.
func (c *Client) Remove(ctx context.Context, id string) error {
	_, err := c.Call(ctx, codec.NewCommand(common.CmdTStorageRemove, 0).AppendString(common.FieldTIdentity, id))
	return err
}

// SaveKey stores key material under the identifier of role and handle.
func (c *Client) SaveKey(ctx context.Context, t store.StoreType, role identifier.Role, handle uint64, data, password []byte) error {
	id, err := identifier.Key(role, handle)
	if err != nil {
		return err
	}
	return c.Save(ctx, t, id, data, password)
}

// LoadKey loads the key material stored under the identifier of role and
// handle.
func (c *Client) LoadKey(ctx context.Context, role identifier.Role, handle uint64, password []byte) ([]byte, error) {
	id, err := identifier.Key(role, handle)
	if err != nil {
		return nil, err
	}
	return c.Load(ctx, id, password)
}

// RemoveKey deletes the key material of role and handle.
func (c *Client) RemoveKey(ctx context.Context, role identifier.Role, handle uint64) error {
	id, err := identifier.Key(role, handle)
	if err != nil {
		return err
	}
	return c.Remove(ctx, id)
}
