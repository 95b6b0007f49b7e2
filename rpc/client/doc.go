// Package client implements the caller side of kBridge: a typed API whose
// calls are encoded into commands, sent over a link to the backend and
// matched with their responses.
//
// Every call claims a waiter slot for its request id, sends the request with
// the bounded retries of the dispatcher and blocks until the response, the
// call timeout or the end of its context. Timeouts are reported as
// errs.ErrTimeout and are never retried by the client. A GeneralError result
// of the backend becomes an error classed after the command: errs.ErrNotFound
// for load and remove, errs.ErrCrypto for crypto commands, errs.ErrCA for
// certificate commands.
//
// Each call is traced with an OpenTelemetry span named "kbridge.<command>"
// and timed in a go-metrics registry (see Client.Timers).
//
// Usage Example:
//
//	link, err := unix.Dial(config.Transport)
//	if err != nil {
//	  return err
//	}
//	c := client.New(ctx, link, config)
//	defer c.Close()
//
//	priv, pub, err := c.Keygen(ctx, crypto.CurveX25519)
//	if err != nil {
//	  return err
//	}
//	if err := c.SaveKey(ctx, store.StoreTypePermanent, identifier.RolePrivate, 7, priv, pin); err != nil {
//	  return err
//	}
package client
