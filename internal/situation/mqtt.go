package situation

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/satindergrewal/segue/internal/logger"
)

const mqttTimeout = 10 * time.Second

// Selector receives situation names from a feed. *Manual satisfies it.
type Selector interface {
	Select(name string)
}

// MQTTFeed follows a topic on which a running game publishes its active
// situation, either as a bare string or as {"situation": "..."}.
type MQTTFeed struct {
	client paho.Client
	broker string
	topic  string
	target Selector

	mu      sync.Mutex
	started bool
}

// NewMQTTFeed creates a feed but does not connect.
func NewMQTTFeed(brokerURL, clientID, topic string, target Selector) *MQTTFeed {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	f := &MQTTFeed{broker: brokerURL, topic: topic, target: target}
	// resubscribe after every reconnect; the broker forgets non-persistent sessions
	opts.SetOnConnectHandler(func(c paho.Client) {
		if f.isStarted() {
			c.Subscribe(f.topic, 1, f.handle)
		}
	})
	f.client = paho.NewClient(opts)
	return f
}

func (f *MQTTFeed) isStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Start connects and subscribes. Failures are returned, never fatal; the
// editor keeps working with manual selection.
func (f *MQTTFeed) Start() error {
	token := f.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return &ConnectTimeoutError{Broker: f.broker}
	}
	if err := token.Error(); err != nil {
		return err
	}

	f.mu.Lock()
	f.started = true
	f.mu.Unlock()

	token = f.client.Subscribe(f.topic, 1, f.handle)
	if !token.WaitTimeout(mqttTimeout) {
		return &SubscribeTimeoutError{Topic: f.topic}
	}
	if err := token.Error(); err != nil {
		return err
	}
	logger.Info("mqtt situation feed subscribed", logger.String("broker", f.broker), logger.String("topic", f.topic))
	return nil
}

// Stop disconnects from the broker.
func (f *MQTTFeed) Stop() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
	f.client.Disconnect(1000)
}

func (f *MQTTFeed) handle(_ paho.Client, msg paho.Message) {
	name, err := ParsePayload(msg.Payload())
	if err != nil {
		logger.Warn("mqtt situation payload rejected", logger.String("topic", msg.Topic()), logger.Err(err))
		return
	}
	logger.Debug("situation from game", logger.String("situation", name))
	f.target.Select(name)
}

type situationMessage struct {
	Situation *string `json:"situation"`
}

// ParsePayload extracts the situation name from a bare string or a JSON
// object with a "situation" field. An empty payload clears the situation.
func ParsePayload(payload []byte) (string, error) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var m situationMessage
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return "", err
		}
		if m.Situation == nil {
			return "", errors.New(`missing "situation" field`)
		}
		return *m.Situation, nil
	}
	if strings.HasPrefix(s, `"`) {
		var name string
		if err := json.Unmarshal([]byte(s), &name); err != nil {
			return "", err
		}
		return name, nil
	}
	return s, nil
}

// ConnectTimeoutError indicates the broker did not answer in time.
type ConnectTimeoutError struct {
	Broker string
}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout: " + e.Broker
}

// SubscribeTimeoutError indicates the subscription was not acknowledged.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}
