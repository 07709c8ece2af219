package redis

import "github.com/go-redis/redis/v8"

// Record hash fields returned by every script, in this order.
const recordFields = `'used', 'limit', 'w50', 'w80', 'w100', 'created_at', 'updated_at'`

// getOrCreateScript creates the record hash if absent and returns its fields.
//
// KEYS[1] record hash
// ARGV[1] limit, ARGV[2] now (unix ms)
var getOrCreateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	redis.call('HSET', KEYS[1],
		'used', 0, 'limit', ARGV[1],
		'w50', 0, 'w80', 0, 'w100', 0,
		'created_at', ARGV[2], 'updated_at', ARGV[2])
end
return redis.call('HMGET', KEYS[1], ` + recordFields + `)
`)

// deductScript increments used by cost only if the result stays within
// limit, appends the transaction and advances the last-charged time.
// Returns {status, fields...} where status is -1 (missing), 0 (rejected)
// or 1 (applied).
//
// KEYS[1] record hash, KEYS[2] transaction list, KEYS[3] last-charged hash
// ARGV[1] cost, ARGV[2] now (unix ms), ARGV[3] transaction JSON, ARGV[4] feature
var deductScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {-1}
end
local used = tonumber(redis.call('HGET', KEYS[1], 'used'))
local limit = tonumber(redis.call('HGET', KEYS[1], 'limit'))
local cost = tonumber(ARGV[1])
if used + cost > limit then
	return {0, unpack(redis.call('HMGET', KEYS[1], ` + recordFields + `))}
end
redis.call('HINCRBY', KEYS[1], 'used', cost)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
redis.call('RPUSH', KEYS[2], ARGV[3])
local prev = tonumber(redis.call('HGET', KEYS[3], ARGV[4]) or '0')
if tonumber(ARGV[2]) > prev then
	redis.call('HSET', KEYS[3], ARGV[4], ARGV[2])
end
return {1, unpack(redis.call('HMGET', KEYS[1], ` + recordFields + `))}
`)

// appendScript appends a transaction without touching used.
// Returns -1 when the record is missing, 1 otherwise.
//
// KEYS[1] record hash, KEYS[2] transaction list, KEYS[3] last-charged hash
// ARGV[1] now (unix ms), ARGV[2] transaction JSON, ARGV[3] feature, ARGV[4] cached (0|1)
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[2])
if ARGV[4] == '0' then
	local prev = tonumber(redis.call('HGET', KEYS[3], ARGV[3]) or '0')
	if tonumber(ARGV[1]) > prev then
		redis.call('HSET', KEYS[3], ARGV[3], ARGV[1])
	end
end
return 1
`)

// claimWarningScript sets a warning flag if unset.
// Returns -1 when the record is missing, 1 if this call set the flag, 0 otherwise.
//
// KEYS[1] record hash
// ARGV[1] flag field
var claimWarningScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], ARGV[1]) == '1' then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], 1)
return 1
`)
