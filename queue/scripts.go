package queue

import "github.com/gomodule/redigo/redis"

// settleScript records a job's outcome and moves it from active to a
// terminal set in one step. It refuses to settle a job that has already left
// active and sits in either terminal set.
//
// KEYS: job hash, active, target set, other terminal set
// ARGV: id, outcome field, outcome value, now (ms), score
var settleScript = redis.NewScript(4, `
local removed = redis.call('LREM', KEYS[2], 1, ARGV[1])
if removed == 0 then
  if redis.call('ZSCORE', KEYS[3], ARGV[1]) or redis.call('ZSCORE', KEYS[4], ARGV[1]) then
    return 0
  end
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3], 'finishedOn', ARGV[4])
if redis.call('HEXISTS', KEYS[1], 'processedOn') == 0 then
  redis.call('HSET', KEYS[1], 'processedOn', ARGV[4])
end
redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
return 1
`)

// requeueScript hands a foreign job back to the head of the wait list.
//
// KEYS: active, wait
// ARGV: id
var requeueScript = redis.NewScript(2, `
redis.call('LREM', KEYS[1], 1, ARGV[1])
return redis.call('LPUSH', KEYS[2], ARGV[1])
`)
