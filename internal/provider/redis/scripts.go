package redis

// reindexLua keeps the finished set of a type in step with an item's status
// and update time. Terminal statuses are final, so an item is only ever
// moved forward within the set.
const reindexLua = `
local function reindex(key, status, set, member)
  if status ~= 'COMPLETED' and status ~= 'FAILED' then return end
  local old = redis.call('HGET', key, 'finished')
  if old then redis.call('ZREM', set, old) end
  redis.call('ZADD', set, 0, member)
  redis.call('HSET', key, 'finished', member)
end
`

// KEYS: item, pending set, type index, [correlation set]
// ARGV: member, id, status, finished set, finished member, field/value pairs...
const enqueueLua = reindexLua + `
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV, 6))
if ARGV[3] == 'PENDING' then redis.call('ZADD', KEYS[2], 0, ARGV[1]) end
redis.call('ZADD', KEYS[3], 0, ARGV[1])
if KEYS[4] then redis.call('SADD', KEYS[4], ARGV[2]) end
reindex(KEYS[1], ARGV[3], ARGV[4], ARGV[5])
return 1
`

// KEYS: pending set
// ARGV: item prefix, pending, processing, now
const claimLua = `
while true do
  local m = redis.call('ZRANGE', KEYS[1], 0, 0)
  if #m == 0 then return false end
  redis.call('ZREM', KEYS[1], m[1])
  local sep = string.find(m[1], ':', 1, true)
  local key = ARGV[1] .. string.sub(m[1], sep + 1)
  if redis.call('HGET', key, 'status') == ARGV[2] then
    redis.call('HSET', key, 'status', ARGV[3], 'updatedAt', ARGV[4])
    return redis.call('HGETALL', key)
  end
end
`

// KEYS: item
// ARGV: from, to, now, has error, error, pending prefix, finished prefix, finished member
const transitionLua = reindexLua + `
local f = redis.call('HMGET', KEYS[1], 'status', 'type', 'member')
if not f[1] then return -1 end
if f[1] ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'updatedAt', ARGV[3])
if ARGV[4] == '1' then redis.call('HSET', KEYS[1], 'error', ARGV[5]) end
if ARGV[1] == 'PENDING' and ARGV[2] ~= 'PENDING' then
  redis.call('ZREM', ARGV[6] .. f[2], f[3])
end
reindex(KEYS[1], ARGV[2], ARGV[7] .. f[2], ARGV[8])
return 1
`

// KEYS: item
// ARGV: result, now, finished prefix, finished member
const setResultLua = reindexLua + `
local f = redis.call('HMGET', KEYS[1], 'status', 'type')
if not f[1] then return 0 end
redis.call('HSET', KEYS[1], 'result', ARGV[1], 'updatedAt', ARGV[2])
reindex(KEYS[1], f[1], ARGV[3] .. f[2], ARGV[4])
return 1
`

// KEYS: item
// ARGV: result, now, finished prefix, finished member
const setResultOnceLua = reindexLua + `
local f = redis.call('HMGET', KEYS[1], 'status', 'type')
if not f[1] then return -1 end
if redis.call('HEXISTS', KEYS[1], 'result') == 1 then return 0 end
redis.call('HSET', KEYS[1], 'result', ARGV[1], 'updatedAt', ARGV[2])
reindex(KEYS[1], f[1], ARGV[3] .. f[2], ARGV[4])
return 1
`

// KEYS: correlation set
// ARGV: item prefix, pending prefix, type index prefix
const cancelLua = `
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local key = ARGV[1] .. id
  local f = redis.call('HMGET', key, 'status', 'type', 'member')
  if f[1] == 'PENDING' then
    redis.call('ZREM', ARGV[2] .. f[2], f[3])
    redis.call('ZREM', ARGV[3] .. f[2], f[3])
    redis.call('DEL', key)
    redis.call('SREM', KEYS[1], id)
    n = n + 1
  elseif not f[1] then
    redis.call('SREM', KEYS[1], id)
  end
end
return n
`

// KEYS: staging, region history, region current pointer
// ARGV: staging json, history member, staging id
const approveLua = `
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], 0, ARGV[2])
redis.call('SET', KEYS[3], ARGV[3])
return 1
`
