// Package lua embeds gopher-lua for two jobs.
//
// Filter compiles an operator-supplied script defining keep(key) and is
// consulted for every SET on the command stream; keys it rejects are never
// replayed.
//
// Engine runs EVAL scripts for the sink server with a small redis.call /
// redis.pcall surface (GET, SET, DEL, EXISTS, TTL) over a storage.Storage,
// which is enough to spot-check an injected keyspace from redis-cli.
package lua
