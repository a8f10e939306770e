package redisbackend

import "github.com/redis/go-redis/v9"

// Write modes understood by writeScript.
const (
	modeInsert  = "insert"
	modeUpdate  = "update"
	modeReplace = "replace"
	modeTouch   = "touch"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// writeScript applies a write mode atomically. Returns 0 when the existence
// precondition of the mode fails.
// ARGV: mode, data, updated_at (unix nanos), ttl (ms, 0 = none).
var writeScript = redis.NewScript(`
local exists = redis.call("EXISTS", KEYS[1]) == 1
local mode = ARGV[1]
if mode == "insert" and exists then
	return 0
end
if (mode == "update" or mode == "touch") and not exists then
	return 0
end
if mode == "touch" then
	redis.call("HSET", KEYS[1], "updated_at", ARGV[3])
else
	redis.call("HSET", KEYS[1], "data", ARGV[2], "updated_at", ARGV[3])
end
local ttl = tonumber(ARGV[4])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`)

// expireScript deletes a record whose updated_at is older than ARGV[1].
var expireScript = redis.NewScript(`
local ts = redis.call("HGET", KEYS[1], "updated_at")
if ts and tonumber(ts) < tonumber(ARGV[1]) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
