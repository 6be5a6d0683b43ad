// Package server exposes a storage.Storage over the Redis protocol.
//
// It backs the injector's sink mode: a throwaway target that accepts the
// pipelined SET ... EX traffic of a replay run, so a stream can be
// rehearsed without touching a real Redis. The command surface is small
// (PING, GET, SET with EX/PX, DEL, EXISTS, TTL, PTTL, DBSIZE, FLUSHALL,
// INFO, EVAL/EVALSHA/SCRIPT, AUTH, SELECT 0, QUIT) and is compatible with
// github.com/redis/go-redis clients and redis-cli.
package server
