package fcredis

import "github.com/go-redis/redis/v8"

// redisCheckAndRecordScript is the Lua script for the Fixed Window Counter algorithm.
// KEYS[1]: The Redis hash for the counter (e.g., "rate_limit:api:user123")
// ARGV[1]: Current timestamp in milliseconds
// ARGV[2]: Window duration in milliseconds
// ARGV[3]: Limit
// Returns {1, 0} if the request is allowed, {0, wait_ms} if denied.
var redisCheckAndRecordScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	local window_start_ms = math.floor(now_ms / window_ms) * window_ms
	local field = tostring(window_start_ms)

	local count = tonumber(redis.call('HGET', key, field) or '0')
	if count == 0 then
		redis.call('DEL', key)
	end

	if count < limit then
		redis.call('HINCRBY', key, field, 1)
		redis.call('PEXPIRE', key, window_ms * 2)
		return {1, 0}
	end

	return {0, window_start_ms + window_ms - now_ms}
`)
