// Package protocol implements the subset of the Redis Serialization
// Protocol (RESP) needed to consume a replication command stream and to
// answer simple clients.
//
// The Reader is a streaming parser: it never buffers more than the frame
// currently being decoded, so arbitrarily long inputs (a replication dump
// piped through stdin, for instance) can be consumed in constant memory.
//
// Basic usage:
//
//	reader := protocol.NewReader(os.Stdin)
//	for {
//		value, err := reader.ReadNext()
//		if err != nil {
//			break
//		}
//		// Process value
//	}
//
// Malformed frames are reported as *Error so callers can tell a corrupt
// or truncated stream apart from a failing transport.
package protocol
