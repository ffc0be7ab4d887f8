package mqttclient

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Notifier publishes engine events (transcript completed, summary
// refreshed) to an MQTT broker so caregiver clients can react without
// polling. The engine is a pure publisher; it subscribes to nothing.
type Notifier struct {
	conn      mqtt.Client
	topicBase string
	connected atomic.Bool
	log       zerolog.Logger
}

type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TopicBase string
	Log       zerolog.Logger
}

func Connect(opts Options) (*Notifier, error) {
	n := &Notifier{
		topicBase: opts.TopicBase,
		log:       opts.Log.With().Str("component", "mqtt").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(n.onConnect).
		SetConnectionLostHandler(n.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	n.conn = mqtt.NewClient(clientOpts)
	token := n.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return n, nil
}

// Publish sends one event as JSON to {topicBase}/{eventType}/{elderID}.
// Best effort: a disconnected broker drops the event, it never blocks
// or fails the calling pipeline.
func (n *Notifier) Publish(eventType string, elderID int64, payload map[string]any) {
	if !n.connected.Load() {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Str("event", eventType).Msg("event marshal failed")
		return
	}
	topic := fmt.Sprintf("%s/%s/%d", n.topicBase, eventType, elderID)
	n.conn.Publish(topic, 0, false, body)
}

func (n *Notifier) onConnect(_ mqtt.Client) {
	n.connected.Store(true)
	n.log.Info().Str("topic_base", n.topicBase).Msg("mqtt connected")
}

func (n *Notifier) onConnectionLost(_ mqtt.Client, err error) {
	n.connected.Store(false)
	n.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (n *Notifier) IsConnected() bool {
	return n.connected.Load()
}

func (n *Notifier) Close() {
	n.log.Info().Msg("disconnecting mqtt client")
	n.conn.Disconnect(1000)
}
