// Package ca issues and checks the device certificates of kBridge.
//
// Key Components:
//
//   - Client: the certificate authority interface the backend talks to.
//
//   - LocalCA: an in-process authority with an ECDSA P-256 root. Device
//     certificates carry their custom data as a packed key-value table in a
//     private extension; the serial number is the certificate's card id.
//
//   - CRLRefresher: a periodically refreshed local copy of the revocation
//     list that answers "is this certificate revoked" without a round trip
//     to the authority.
//
//   - PackKeyValues / ParseKeyValues: the packed key-value layout custom data
//     is exchanged in.
package ca
