package slredis

import "github.com/go-redis/redis/v8"

// redisCheckAndRecordScript is the Lua script for the sliding log algorithm.
// KEYS[1]: sorted set holding the admitted request timestamps of one user
// ARGV[1]: current timestamp in microseconds, rounded down
// ARGV[2]: current timestamp in microseconds, rounded up
// ARGV[3]: window in microseconds
// ARGV[4]: limit
// ARGV[5]: epsilon (minimum reported wait) in microseconds
// ARGV[6]: unique member for the request being recorded
// Returns {1, 0} when admitted, {0, wait_us} when denied.
//
// Scores are stored rounded up and compared against the time rounded down, so a
// timestamp is only pruned once it is truly outside the window. Numbers passed back
// to redis.call go through string.format so no digits are lost.
var redisCheckAndRecordScript = redis.NewScript(`
	local key = KEYS[1]
	local now_us = tonumber(ARGV[1])
	local score_us = tonumber(ARGV[2])
	local window_us = tonumber(ARGV[3])
	local limit = tonumber(ARGV[4])
	local epsilon_us = tonumber(ARGV[5])
	local member = ARGV[6]

	local newest = redis.call('ZRANGE', key, -1, -1, 'WITHSCORES')
	if newest[2] ~= nil then
		local newest_us = tonumber(newest[2])
		if newest_us > score_us then
			now_us = newest_us
			score_us = newest_us
		end
	end

	redis.call('ZREMRANGEBYSCORE', key, '-inf', string.format('%.0f', now_us - window_us))

	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, string.format('%.0f', score_us), member)
		redis.call('PEXPIRE', key, math.ceil(window_us / 1000) + 1000)
		return {1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local wait_us = tonumber(oldest[2]) + window_us - now_us
	if wait_us < epsilon_us then
		wait_us = epsilon_us
	end
	return {0, wait_us}
`)
