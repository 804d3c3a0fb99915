// Package protocol owns the pomelo wire contract.
//
// Ownership boundary:
// - packet framing (type + 3-byte length + body)
// - message framing (flag, varint id, route, body)
// - stream reassembly of partial and coalesced reads
//
// Payload bodies are opaque here; JSON encoding belongs to the session.
package protocol
