// Package server implements the kBridge backend. It accepts links from
// callers and answers every request arriving on them with the processor that
// owns the request's command type.
//
// The package focuses on:
//   - Translating wire commands into calls of the key vault, the crypto
//     provider and the certificate authority
//   - Answering malformed or failed requests with a GeneralError result frame
//   - Processing the requests of one link concurrently with a bounded number
//     of workers
//
// Key Components:
//
//   - IProcessor: Interface of a processor, it names the command types it
//     owns and turns a request into a reply.
//
//   - NewStorageProcessor, NewCryptoProcessor, NewCertificateProcessor and
//     NewPingProcessor: The processors of the four command groups.
//
//   - NewRPCServer: Factory function creating the complete backend from a
//     common.ServerConfig.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.Transport.Endpoint = "/run/kbridge.sock"
//
//	s, err := server.NewRPCServer(config)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	l, err := unix.Listen(config.Transport)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	if err := s.Serve(ctx, l); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Field expectations of the processors:
//
//	storageStore     identity, data, keyType (u16), [password]      -> result
//	storageLoad      identity, [keyType], [password]                -> data
//	storageRemove    identity                                       -> result
//	keygen           [curveType]                                    -> privateKey, publicKey
//	encryptPassword  password, data                                 -> data
//	decryptPassword  password, data                                 -> data
//	encrypt          data, certificate... | (publicKey, identity)... -> data
//	decrypt          privateKey, data, identity                     -> data
//	sign             privateKey, data                               -> signature
//	verify           data, signature, certificate | publicKey       -> result
//	hash             [hashFunc], data                               -> data
//	certCreate       identity, curveType, [data]                    -> privateKey, certificate
//	certGet          identity ("0" is the root)                     -> certificate
//	certVerify       certificate, rootCertificate                   -> result
//	certParse        certificate                                    -> data
//	certRevoke       identity, privateKey                           -> result
//	crlInfo          [token]                                        -> crlLast, crlNext
//	checkIsRevoked   certificate                                    -> optional1 (0 or 1)
//	ping             any fields                                     -> the same fields
//
// Thread Safety:
//
//	The server is safe for concurrent use. Serve may be called once per
//	listener; Handle may be called from any goroutine.
package server
