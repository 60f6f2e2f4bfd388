package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage"
	goredis "github.com/redis/go-redis/v9"
)

// maxNotificationsPerSubject bounds each subject's notification list.
const maxNotificationsPerSubject = 1000

// KEYS[1] dedupe key, KEYS[2] subject list
// ARGV: notification id, encoded notification, list cap
var createNotificationScript = goredis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  redis.call('LPUSH', KEYS[2], ARGV[2])
  redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[3]) - 1)
  return 1
end
return 0
`)

type notificationStore Store

var _ storage.NotificationStore = (*notificationStore)(nil)

// The subject's list and dedupe keys share its hash tag.
func (s *notificationStore) listKey(subjectID string) string {
	return (*Store)(s).key("notif", "{"+subjectID+"}", "list")
}

func (s *notificationStore) dedupeKey(subjectID, key string) string {
	return (*Store)(s).key("notif", "{"+subjectID+"}", "dk", key)
}

// CreateNotification stores a notification unless its dedupe key was already used.
func (s *notificationStore) CreateNotification(ctx context.Context, n *core.Notification) (bool, error) {
	if err := core.ValidateNotification(n); err != nil {
		return false, err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data := storage.MarshalNotification(n)
	list := s.listKey(n.SubjectID)

	if n.DedupeKey == "" {
		_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.LPush(ctx, list, data)
			pipe.LTrim(ctx, list, 0, maxNotificationsPerSubject-1)
			return nil
		})
		if err != nil {
			return false, translate(err)
		}
		return true, nil
	}

	created, err := createNotificationScript.Run(ctx, s.client,
		[]string{s.dedupeKey(n.SubjectID, n.DedupeKey), list},
		n.ID, data, maxNotificationsPerSubject,
	).Int()
	if err != nil {
		return false, translate(err)
	}
	return created == 1, nil
}

// ListNotifications returns a subject's notifications, most recent first.
func (s *notificationStore) ListNotifications(ctx context.Context, subjectID string, limit int) ([]*core.Notification, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	raw, err := s.client.LRange(ctx, s.listKey(subjectID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, translate(err)
	}

	results := make([]*core.Notification, 0, len(raw))
	for _, item := range raw {
		n, err := storage.UnmarshalNotification([]byte(item))
		if err != nil {
			return nil, err
		}
		results = append(results, n)
	}
	return results, nil
}
