// Package store defines the bounded key store used by the kBridge backend to
// keep key material on behalf of its callers.
//
// Two independent tables implement IKeyStore:
//
//   - permanent: durable, fixed number of slots, each write stamps the slot
//     with the next sequence number and a full table overwrites the slot
//     with the smallest one (oldest write, reads do not count). The table is
//     persisted as a fixed-size record array rewritten on every mutation.
//
//   - temporary: volatile, insertion ordered, a full table drops the oldest
//     insertion (strict FIFO). Re-saving an id moves it to the tail.
//
// Vault puts both tables behind a single API selected by StoreType and adds
// optional pass-phrase encryption through a Cipher.
//
// Errors carry the classes of the errs package: errs.ErrValidation for
// oversized ids or payloads, errs.ErrNotFound for unknown ids and
// errs.ErrCrypto for failed pass-phrase operations.
package store
