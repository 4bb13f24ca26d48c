// Package ratelimit implements a distributed token bucket whose state lives
// in a remote store. Every decision is a single atomic read-modify-write
// against that store, so any number of server processes share one limit and
// no counter is ever kept in process memory.
package ratelimit
