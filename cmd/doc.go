// Package cmd implements the command-line interface of kBridge. It provides a
// hierarchical command structure for running the backend and for calling it.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the kBridge backend
//   - bridge: Caller commands (store, crypto, cert, ping, perf). With
//     --transport memory they run against an embedded in-process backend
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable KBRIDGE_<FLAG>, .env and
// .env.local files are loaded on start.
//
// See kbridge -help for a list of all commands.
package cmd
