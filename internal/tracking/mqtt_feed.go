package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/mqtt"
	"github.com/Nixie-Tech-LLC/minaret/internal/report"
	"github.com/Nixie-Tech-LLC/minaret/internal/resolver"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	locationTopic   = "devices/+/location"
	lifecycleTopic  = "devices/+/lifecycle"
	permissionTopic = "devices/+/permission"

	dispatchTimeout  = 2 * time.Second
	subscribeTimeout = 10 * time.Second
)

type locationPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type lifecyclePayload struct {
	State string   `json:"state"` // active, inactive, background, closed
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
}

type permissionPayload struct {
	Granted bool `json:"granted"`
}

// Command is published to devices/<id>/commands.
type Command struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ResolutionMessage is published, retained, to devices/<id>/resolution.
type ResolutionMessage struct {
	Result    *resolver.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// MQTTFeed turns device messages into session events and publishes
// resolution outcomes back to the device.
//
// The user id is taken from the topic, so the broker ACL must restrict
// each authenticated device client to its own devices/<user id>/# tree.
type MQTTFeed struct {
	client  paho.Client
	manager *Manager

	mu      sync.Mutex
	subErr  error
	stopped bool
}

func NewMQTTFeed(client paho.Client, manager *Manager) *MQTTFeed {
	return &MQTTFeed{client: client, manager: manager}
}

// Start subscribes to the device topics.
func (f *MQTTFeed) Start(ctx context.Context) error {
	if err := f.subscribe(ctx, f.client); err != nil {
		return err
	}
	log.Info().Msg("subscribed to device location feed")
	return nil
}

// Resubscribe is a connect hook restoring the device subscriptions after
// the broker connection comes back.
func (f *MQTTFeed) Resubscribe(client paho.Client) {
	f.mu.Lock()
	stopped := f.stopped
	f.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	if err := f.subscribe(ctx, client); err != nil {
		report.Warn(err, "tracking.resubscribe", nil)
		return
	}
	log.Info().Msg("restored device feed subscriptions")
}

func (f *MQTTFeed) subscribe(ctx context.Context, client paho.Client) error {
	filters := map[string]byte{locationTopic: 0, lifecycleTopic: 1, permissionTopic: 1}
	err := mqtt.Wait(ctx, client.SubscribeMultiple(filters, f.handle))
	if err != nil {
		err = fmt.Errorf("subscribe device topics: %w", err)
	}
	f.mu.Lock()
	f.subErr = err
	f.mu.Unlock()
	return err
}

// Healthy reports the outcome of the latest subscribe attempt.
func (f *MQTTFeed) Healthy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subErr
}

func (f *MQTTFeed) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()

	token := f.client.Unsubscribe(locationTopic, lifecycleTopic, permissionTopic)
	if !token.WaitTimeout(time.Second) || token.Error() != nil {
		log.Warn().Err(token.Error()).Msg("failed to unsubscribe device feed")
	}
}

func (f *MQTTFeed) handle(_ paho.Client, msg paho.Message) {
	userID, kind, ok := parseDeviceTopic(msg.Topic())
	if !ok {
		log.Debug().Str("topic", msg.Topic()).Msg("ignoring device message")
		return
	}

	ev, err := decodeEvent(kind, msg.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid device message")
		return
	}
	if ev == nil {
		return
	}
	if _, closing := ev.(closeEvent); closing {
		f.manager.End(userID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	if err := f.manager.Dispatch(ctx, userID, ev); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("kind", kind).Msg("failed to dispatch device event")
	}
}

// closeEvent is decoded from a "closed" lifecycle message and never
// reaches a session.
type closeEvent struct{}

func (closeEvent) event() {}

func decodeEvent(kind string, payload []byte) (Event, error) {
	switch kind {
	case "location":
		var p locationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return PositionEvent{Coordinates: geo.Coordinates{Lat: p.Lat, Lon: p.Lon}}, nil

	case "lifecycle":
		var p lifecyclePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		switch p.State {
		case "active":
			ev := ResumeEvent{}
			if p.Lat != nil && p.Lon != nil {
				ev.Coordinates = &geo.Coordinates{Lat: *p.Lat, Lon: *p.Lon}
			}
			return ev, nil
		case "closed":
			return closeEvent{}, nil
		case "inactive", "background":
			return nil, nil
		}
		return nil, fmt.Errorf("unknown lifecycle state %q", p.State)

	case "permission":
		var p permissionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return PermissionEvent{Granted: p.Granted}, nil
	}
	return nil, fmt.Errorf("unknown device message %q", kind)
}

// parseDeviceTopic splits devices/<user id>/<kind>.
func parseDeviceTopic(topic string) (string, string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "devices" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// RequestFix asks the device for one fresh position report.
func (f *MQTTFeed) RequestFix(ctx context.Context, userID string) error {
	payload, err := json.Marshal(Command{Type: "location_request", Timestamp: time.Now().Unix()})
	if err != nil {
		return err
	}
	return mqtt.Wait(ctx, f.client.Publish(fmt.Sprintf("devices/%s/commands", userID), 1, false, payload))
}

// Publish is a Listener that forwards outcomes to the device. It does not
// wait for the broker to acknowledge.
func (f *MQTTFeed) Publish(userID string, res *resolver.Result, err error) {
	msg := ResolutionMessage{Result: res, Timestamp: time.Now().Unix()}
	if err != nil {
		msg.Error = err.Error()
	}
	payload, mErr := json.Marshal(msg)
	if mErr != nil {
		log.Error().Err(mErr).Str("user_id", userID).Msg("failed to encode resolution")
		return
	}
	f.client.Publish(fmt.Sprintf("devices/%s/resolution", userID), 1, true, payload)
}
