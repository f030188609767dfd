package scout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNoTelemetry is returned by MQTTClient before the first pose or scan arrives.
var ErrNoTelemetry = errors.New("no telemetry received yet")

// MQTTClient receives robot telemetry over MQTT and publishes drive commands.
// It is both a RobotSource and a Driver.
type MQTTClient struct {
	client      mqtt.Client
	config      MQTTConfig
	laser       LaserProperties
	isConnected bool
	pose        *Pose
	scan        *Scan
	mu          sync.RWMutex
}

// NewMQTTClient builds a client from config and starts connecting in the
// background until ctx is done. An empty broker disables MQTT and returns nil.
func NewMQTTClient(ctx context.Context, config MQTTConfig) (*MQTTClient, error) {
	if config.Broker == "" {
		Logf("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	client := &MQTTClient{config: config, laser: DefaultLaser}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)

	clientID := config.ClientID
	if clientID == "" {
		clientID = "tudoscout"
	}
	opts.SetClientID(clientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true) // stale telemetry is useless after a reconnect
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry(ctx)

	return client, nil
}

// newMQTTClientWithMock creates an MQTTClient around an existing mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, config MQTTConfig) *MQTTClient {
	return &MQTTClient{client: client, config: config, laser: DefaultLaser}
}

// SetLaser sets the sweep geometry used to expand bare echo payloads
func (c *MQTTClient) SetLaser(laser LaserProperties) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.laser = laser
}

func (c *MQTTClient) prefix() string {
	if c.config.PublishPrefix == "" {
		return "tudoscout"
	}
	return c.config.PublishPrefix
}

// PoseTopic is the topic robot poses are read from
func (c *MQTTClient) PoseTopic() string {
	if c.config.PoseTopic != "" {
		return c.config.PoseTopic
	}
	return c.prefix() + "/robot/pose"
}

// ScanTopic is the topic laser scans are read from
func (c *MQTTClient) ScanTopic() string {
	if c.config.ScanTopic != "" {
		return c.config.ScanTopic
	}
	return c.prefix() + "/robot/scan"
}

// CommandTopic is the topic drive commands are published to
func (c *MQTTClient) CommandTopic() string {
	return c.prefix() + "/robot/cmd"
}

// connectWithRetry attempts to connect to the broker with exponential backoff
func (c *MQTTClient) connectWithRetry(ctx context.Context) {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		Logf("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				Logf("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			Logf("[MQTT] connection failed: %v", token.Error())
		} else {
			Logf("[MQTT] connection timeout")
		}

		Logf("[MQTT] retrying connection in %v...", retryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the telemetry topics
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{c.PoseTopic(), c.handlePose},
		{c.ScanTopic(), c.handleScan},
	}
	for _, s := range subs {
		token := client.Subscribe(s.topic, 0, s.handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			Logf("[MQTT] error subscribing to %s: %v", s.topic, token.Error())
			continue
		}
		Logf("[MQTT] subscribed to %s", s.topic)
	}
}

// onConnectionLost is called when the connection drops; auto-reconnect retries
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	Logf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	Logf("[MQTT] reconnecting...")
}

func (c *MQTTClient) handlePose(_ mqtt.Client, msg mqtt.Message) {
	pose, err := DecodePose(msg.Payload())
	if err != nil {
		Logf("[MQTT] dropping pose on %s: %v", msg.Topic(), err)
		return
	}
	c.mu.Lock()
	c.pose = &pose
	c.mu.Unlock()
}

func (c *MQTTClient) handleScan(_ mqtt.Client, msg mqtt.Message) {
	c.mu.RLock()
	laser := c.laser
	c.mu.RUnlock()

	scan, err := DecodeScan(msg.Payload(), laser)
	if err != nil {
		Logf("[MQTT] dropping scan on %s: %v", msg.Topic(), err)
		return
	}
	c.mu.Lock()
	c.scan = &scan
	c.mu.Unlock()
}

// Pose returns the latest received pose
func (c *MQTTClient) Pose(ctx context.Context) (Pose, error) {
	if err := ctx.Err(); err != nil {
		return Pose{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pose == nil {
		return Pose{}, fmt.Errorf("pose on %s: %w", c.PoseTopic(), ErrNoTelemetry)
	}
	return *c.pose, nil
}

// Scan returns the latest received scan
func (c *MQTTClient) Scan(ctx context.Context) (Scan, error) {
	if err := ctx.Err(); err != nil {
		return Scan{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.scan == nil {
		return Scan{}, fmt.Errorf("scan on %s: %w", c.ScanTopic(), ErrNoTelemetry)
	}
	return *c.scan, nil
}

// Drive publishes cmd to the command topic. Commands are not retained so a
// restarted robot never replays a stale one.
func (c *MQTTClient) Drive(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.client == nil || !c.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}
	topic := c.CommandTopic()
	token := c.client.Publish(topic, 0, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		Logf("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}
