// Package redisbus implements the event and schema capability roles over
// Redis. Events travel on Redis Streams, one stream per (api, event) pair,
// with a consumer group per listener name giving at-least-once delivery and
// XACK acknowledgement. Schemas are TTL'd keys behind an index set.
//
// The package does not implement the RPC or result roles; a bus using it
// for those capabilities gets "operation not supported" errors from the
// embeddable defaults in core/transport.
package redisbus
