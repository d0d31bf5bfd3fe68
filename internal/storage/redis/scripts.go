package redis

const (
	// insertRecordScript atomically writes an append-only record and indexes
	// it by timestamp for its user
	insertRecordScript = `
local record_key = KEYS[1]     -- voicetime:{join|leave}:{id}
local user_index = KEYS[2]     -- voicetime:{joins|leaves}:user:{userID}

local id = ARGV[1]
local score = tonumber(ARGV[2])

-- Remaining args are field/value pairs
local fields = {}
for i = 3, #ARGV do
  fields[#fields + 1] = ARGV[i]
end

redis.call('HSET', record_key, unpack(fields))
redis.call('ZADD', user_index, score, id)

return 'OK'
`

	// createTotalScript atomically claims the day slot for a user and writes
	// the record. If the slot is already taken, the entries are appended to
	// the existing record instead and its server name is overwritten.
	createTotalScript = `
local day_key = KEYS[1]        -- voicetime:totals:{userID}:{date}

local id = ARGV[1]
local discord_id = ARGV[2]
local discord_name = ARGV[3]
local server_name = ARGV[4]
local created_at = ARGV[5]

local existing = redis.call('GET', day_key)
if existing then
  id = existing
else
  redis.call('SET', day_key, id)
  redis.call('HSET', 'voicetime:total:' .. id,
    'id', id,
    'discord_id', discord_id,
    'discord_name', discord_name,
    'created_at', created_at
  )
end

redis.call('HSET', 'voicetime:total:' .. id, 'server_name', server_name)

local entries_key = 'voicetime:total:' .. id .. ':entries'
for i = 6, #ARGV do
  redis.call('RPUSH', entries_key, ARGV[i])
end

return id
`

	// appendEntryScript atomically pushes one session entry onto an existing
	// record and overwrites its server name
	appendEntryScript = `
local total_key = KEYS[1]      -- voicetime:total:{id}
local entries_key = KEYS[2]    -- voicetime:total:{id}:entries

local entry = ARGV[1]
local server_name = ARGV[2]

if redis.call('EXISTS', total_key) == 0 then
  return redis.error_reply('NOTFOUND')
end

redis.call('RPUSH', entries_key, entry)
redis.call('HSET', total_key, 'server_name', server_name)

return redis.call('LLEN', entries_key)
`
)
