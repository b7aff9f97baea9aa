// Package metrics provides lock-free counters for authcore
// observability.
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically; the write path is allocation-free. Export (OTel) lives in
// metrics/export/ and reads Snapshot values.
package metrics
