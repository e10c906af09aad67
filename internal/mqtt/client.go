package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/minofeel/TuringBot/internal/events"
)

const (
	connectTimeout   = 10 * time.Second
	subscribeTimeout = 10 * time.Second
)

// Options configures the broker connection.
type Options struct {
	URL      string
	ClientID string
	Username string
	Password string
}

// Client wraps the Paho MQTT client for the message logger.
type Client struct {
	client paho.Client
	url    string
	mu     sync.Mutex

	hookMu    sync.RWMutex
	onConnect func()
	onLost    func(error)
}

// NewClient creates a new MQTT client but does not connect.
// The client reconnects on its own; OnConnect hooks run after every
// (re)connect so subscriptions can be restored.
func NewClient(opts Options) *Client {
	c := &Client{url: opts.URL}

	pahoOpts := paho.NewClientOptions().
		AddBroker(opts.URL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleConnectionLost)
	if opts.Username != "" {
		pahoOpts.SetUsername(opts.Username)
		pahoOpts.SetPassword(opts.Password)
	}

	c.client = paho.NewClient(pahoOpts)
	return c
}

// OnConnect registers fn to run after every successful connect.
// It runs on its own goroutine because paho forbids blocking in the handler.
func (c *Client) OnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// OnConnectionLost registers fn to run when the broker connection drops.
func (c *Client) OnConnectionLost(fn func(error)) {
	c.hookMu.Lock()
	c.onLost = fn
	c.hookMu.Unlock()
}

func (c *Client) handleConnect(paho.Client) {
	_ = events.Emit("info", "mqtt.connected", "", map[string]interface{}{
		"broker": c.url,
	})

	c.hookMu.RLock()
	fn := c.onConnect
	c.hookMu.RUnlock()
	if fn != nil {
		go fn()
	}
}

func (c *Client) handleConnectionLost(_ paho.Client, err error) {
	_ = events.Emit("warning", "mqtt.disconnected", "connection lost", map[string]interface{}{
		"broker": c.url,
		"error":  err.Error(),
	})

	c.hookMu.RLock()
	fn := c.onLost
	c.hookMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, handler)
	if !token.WaitTimeout(subscribeTimeout) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}
