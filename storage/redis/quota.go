package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage"
	goredis "github.com/redis/go-redis/v9"
)

// Quota records are hashes. The script creates the record lazily, rolls it
// over when the stored window starts before the current one, refreshes the
// allowance and conditionally increments, all in one atomic step.
//
// KEYS[1] record
// ARGV: subject, resource, tier, limit, window start (unix micro), increment flag
// Returns {incremented, consumed, window start}. The window start travels as a
// string because Lua number formatting loses precision on microsecond stamps.
var quotaScript = goredis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'window_start')
local consumed = tonumber(redis.call('HGET', KEYS[1], 'consumed') or '0')
local ws = ARGV[5]
if stored and tonumber(stored) >= tonumber(ARGV[5]) then
  ws = stored
else
  consumed = 0
end
local ok = 0
if ARGV[6] == '1' and consumed < tonumber(ARGV[4]) then
  consumed = consumed + 1
  ok = 1
end
redis.call('HSET', KEYS[1],
  'subject', ARGV[1], 'resource', ARGV[2], 'tier', ARGV[3],
  'allowance', ARGV[4], 'consumed', consumed, 'window_start', ws)
return {ok, consumed, ws}
`)

type quotaStore Store

var _ storage.QuotaStore = (*quotaStore)(nil)

func (q *quotaStore) recordKey(subjectID, resource string) string {
	return (*Store)(q).key("quota", resource, subjectID)
}

// GetQuota returns the stored record without rolling it over.
func (q *quotaStore) GetQuota(ctx context.Context, subjectID, resource string) (*core.QuotaRecord, error) {
	if err := core.ValidateQuotaKey(subjectID, resource); err != nil {
		return nil, err
	}

	fields, err := q.client.HGetAll(ctx, q.recordKey(subjectID, resource)).Result()
	if err != nil {
		return nil, translate(err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}

	record := &core.QuotaRecord{
		SubjectID: fields["subject"],
		Resource:  fields["resource"],
		Tier:      fields["tier"],
	}
	if record.Allowance, err = strconv.Atoi(fields["allowance"]); err != nil {
		return nil, storage.ErrSerializationFailed
	}
	if record.Consumed, err = strconv.Atoi(fields["consumed"]); err != nil {
		return nil, storage.ErrSerializationFailed
	}
	micro, err := strconv.ParseInt(fields["window_start"], 10, 64)
	if err != nil {
		return nil, storage.ErrSerializationFailed
	}
	record.WindowStart = time.UnixMicro(micro).UTC()
	return record, nil
}

// EnsureQuota loads or lazily creates the record for the active window.
func (q *quotaStore) EnsureQuota(ctx context.Context, subjectID, resource string, allowance core.Allowance, now time.Time) (*core.QuotaRecord, error) {
	record, _, err := q.run(ctx, subjectID, resource, allowance, now, false)
	return record, err
}

// IncrementIfBelowLimit atomically charges one unit when the limit allows it.
func (q *quotaStore) IncrementIfBelowLimit(ctx context.Context, subjectID, resource string, allowance core.Allowance, now time.Time) (*core.QuotaRecord, bool, error) {
	return q.run(ctx, subjectID, resource, allowance, now, true)
}

func (q *quotaStore) run(ctx context.Context, subjectID, resource string, allowance core.Allowance, now time.Time, increment bool) (*core.QuotaRecord, bool, error) {
	if err := core.ValidateQuotaKey(subjectID, resource); err != nil {
		return nil, false, err
	}
	if err := core.ValidateAllowance(allowance); err != nil {
		return nil, false, err
	}

	flag := "0"
	if increment {
		flag = "1"
	}
	windowStart := core.WindowStart(now, allowance.Window)

	res, err := quotaScript.Run(ctx, q.client,
		[]string{q.recordKey(subjectID, resource)},
		subjectID, resource, allowance.Tier, strconv.Itoa(allowance.Limit),
		strconv.FormatInt(windowStart.UnixMicro(), 10), flag,
	).Slice()
	if err != nil {
		return nil, false, translate(err)
	}
	if len(res) != 3 {
		return nil, false, storage.ErrSerializationFailed
	}
	ok, okErr := toInt64(res[0])
	consumed, consumedErr := toInt64(res[1])
	ws, wsErr := toInt64(res[2])
	if okErr != nil || consumedErr != nil || wsErr != nil {
		return nil, false, storage.ErrSerializationFailed
	}

	record := &core.QuotaRecord{
		SubjectID:   subjectID,
		Resource:    resource,
		Tier:        allowance.Tier,
		Allowance:   allowance.Limit,
		Consumed:    int(consumed),
		WindowStart: time.UnixMicro(ws).UTC(),
	}
	return record, ok == 1, nil
}

// toInt64 converts a script reply element, which is either an integer or a
// bulk string, to int64.
func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, storage.ErrSerializationFailed
	}
}
