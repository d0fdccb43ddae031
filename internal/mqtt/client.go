package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// ConnectHooks holds functions run after every successful connection,
// including automatic reconnects. The broker drops subscriptions of a
// clean session, so subscribers register here to restore them.
type ConnectHooks struct {
	mu  sync.Mutex
	fns []func(paho.Client)
}

func (h *ConnectHooks) Add(fn func(paho.Client)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

// Run calls every registered hook in order.
func (h *ConnectHooks) Run(client paho.Client) {
	h.mu.Lock()
	fns := append(([]func(paho.Client))(nil), h.fns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(client)
	}
}

// Connect creates a client for brokerURL and blocks until the first
// connection attempt finishes. The client reconnects on its own afterwards
// and runs hooks, which may be nil, on each connection.
func Connect(brokerURL, clientID string, hooks *ConnectHooks) (paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		log.Debug().Str("topic", msg.Topic()).Msg("unhandled mqtt message")
	})
	opts.OnConnect = func(c paho.Client) {
		log.Info().Str("broker", brokerURL).Msg("connected to MQTT broker")
		if hooks != nil {
			hooks.Run(c)
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Str("broker", brokerURL).Msg("MQTT connection lost")
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return client, nil
}

// Wait blocks until token completes or ctx is done.
func Wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
