// Package mirror publishes the latest diagnostic record to Redis so other
// processes can read it without calling the API.
//
// Each record is written as JSON with SET <key> <json> EX <ttl>. Only the
// newest record is kept: if a write is still in flight when the next tick
// arrives, the pending record is replaced rather than queued. A stale key
// expires on its own once the process stops ticking.
package mirror
