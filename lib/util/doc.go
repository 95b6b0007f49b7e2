// Package util provides data structures and helpers shared by the kBridge
// packages.
//
// Contents:
//
//   - Queue: lock-free multi-producer single-consumer queue (dispatcher)
//   - SeqHeap: min-heap of slots by write sequence (permanent store eviction)
//   - Stats, NewLatencyStats: latency summaries (ping and perf commands)
//   - GenerateSeed: random 32 bit values (first request id, ping tokens)
package util
