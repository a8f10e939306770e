// Package redisbackend stores sessions as Redis hashes.
//
// Each record lives at <prefix><name>:<id> with the fields data and
// updated_at (unix nanoseconds). Writes run as Lua scripts so the existence
// checks of Insert, Update and Touch are atomic with the write.
//
// The session lock is a separate key <prefix><name>:<id>:lock set with
// SET NX PX and a random owner token. Release is a compare-and-delete script,
// so a holder whose lock already expired never removes a lock taken by
// someone else. The lock TTL (WithLockTTL) must exceed the longest request
// that can hold a session.
package redisbackend
