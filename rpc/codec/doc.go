// Package codec implements the self-describing binary frame exchanged between
// callers and the kBridge backend.
//
// A frame consists of a fixed header, one fixed-size header per field and the
// concatenated field payloads. Every declared payload length is checked
// against the remaining buffer before it is sliced, and a frame that fails any
// check is rejected as a whole with an error of class errs.ErrValidation.
//
// Two minimal frame shapes are used for control:
//
//   - the ping frame (CmdTPing, no fields) used as a liveness probe
//   - the result frame (one FieldTResult field) reporting success or failure
//     of any operation
package codec
