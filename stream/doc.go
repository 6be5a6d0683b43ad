// Package stream turns a replication command stream into correlated
// write records.
//
// Three stages live here, all driven from a single goroutine:
//
//   - Decoder reads RESP frames and classifies them as SET, EXPIREAT or
//     anything else.
//   - Correlator holds every SET until the EXPIREAT for the same key shows
//     up, then emits a Record carrying the value and its absolute
//     expiration. SETs that never see an EXPIREAT are handed back as
//     leftovers once the stream ends.
//   - Batcher groups records into fixed-size batches for the injection
//     workers.
//
// None of these types are safe for concurrent use; they are owned by the
// producer side of the pipeline.
package stream
