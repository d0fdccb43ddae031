// Package notify keeps a user's push topic subscription pointed at the
// organization they currently follow.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/Nixie-Tech-LLC/minaret/internal/mqtt"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

type TopicSync interface {
	// SyncSubscription points the user's subscription at orgID, or clears
	// it when orgID is nil.
	SyncSubscription(ctx context.Context, userID string, orgID *string, level model.NotificationLevel) error
}

// Noop discards every sync request.
type Noop struct{}

func (Noop) SyncSubscription(context.Context, string, *string, model.NotificationLevel) error {
	return nil
}

// SubscriptionCommand is published, retained, to users/<id>/subscriptions.
// The app applies it to its platform push subscription.
type SubscriptionCommand struct {
	Type      string   `json:"type"`
	OrgID     *string  `json:"org_id"`
	Topics    []string `json:"topics"`
	Timestamp int64    `json:"timestamp"`
}

type MQTTTopicSync struct {
	client paho.Client
	now    func() time.Time
}

func NewMQTTTopicSync(client paho.Client) *MQTTTopicSync {
	return &MQTTTopicSync{client: client, now: time.Now}
}

func UserTopic(userID string) string {
	return fmt.Sprintf("users/%s/subscriptions", userID)
}

// Topics lists the organization topics a notification level subscribes to.
func Topics(orgID *string, level model.NotificationLevel) []string {
	if orgID == nil || level == model.NotifyNone {
		return []string{}
	}
	topics := []string{fmt.Sprintf("org/%s/athan", *orgID)}
	if level == model.NotifyAll {
		topics = append(topics, fmt.Sprintf("org/%s/announcements", *orgID))
	}
	return topics
}

func (s *MQTTTopicSync) SyncSubscription(ctx context.Context, userID string, orgID *string, level model.NotificationLevel) error {
	cmd := SubscriptionCommand{
		Type:      "subscription_sync",
		OrgID:     orgID,
		Topics:    Topics(orgID, level),
		Timestamp: s.now().Unix(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	topic := UserTopic(userID)
	if err := mqtt.Wait(ctx, s.client.Publish(topic, 1, true, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	log.Debug().Str("user_id", userID).Strs("topics", cmd.Topics).Msg("synced topic subscription")
	return nil
}
