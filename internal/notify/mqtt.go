// Package notify publishes sync pass summaries to an MQTT broker so other
// devices and home automation can follow upload progress.
package notify

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/catchsync/internal/catchsync"
	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// GetLogger returns the notify module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notify")
}

// Config holds the MQTT publisher configuration.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string
	Retain            bool
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	// DisconnectQuiesce is how long Disconnect waits for in-flight work.
	DisconnectQuiesce time.Duration
}

// DefaultConfig returns a Config with reasonable timeouts.
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectQuiesce: 250 * time.Millisecond,
	}
}

// ConfigFromSettings builds a Config from the notify.mqtt settings.
func ConfigFromSettings(s *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.Broker
	cfg.ClientID = s.ClientID
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Topic = s.Topic
	cfg.Retain = s.Retain
	return cfg
}

// brokerClient is the part of the paho client the publisher uses.
type brokerClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

func pahoFactory(opts *mqtt.ClientOptions) brokerClient {
	return mqtt.NewClient(opts)
}

// Publisher implements catchsync.Notifier over MQTT. It connects lazily on the
// first publish and lets paho handle reconnects afterwards.
type Publisher struct {
	config    Config
	newClient func(*mqtt.ClientOptions) brokerClient
	resolve   func(ctx context.Context, host string) error

	mu              sync.Mutex
	client          brokerClient
	lastConnAttempt time.Time
}

// NewPublisher creates an unconnected publisher.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{
		config:    cfg,
		newClient: pahoFactory,
		resolve:   resolveHost,
	}
}

var _ catchsync.Notifier = (*Publisher)(nil)

// Connect establishes the broker connection. Attempts closer together than
// ReconnectCooldown are refused.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked(ctx)
}

func (p *Publisher) connectLocked(ctx context.Context) error {
	if p.client != nil && p.client.IsConnected() {
		return nil
	}
	if since := time.Since(p.lastConnAttempt); since < p.config.ReconnectCooldown {
		return p.connError(errors.Newf("connection attempt too recent, last attempt was %v ago", since.Round(time.Millisecond)).Build())
	}
	p.lastConnAttempt = time.Now()

	u, err := url.Parse(p.config.Broker)
	if err != nil || u.Host == "" {
		if err == nil {
			err = errors.Newf("broker URL %q has no host", p.config.Broker).Build()
		}
		return errors.New(err).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Context("broker", p.config.Broker).
			Build()
	}
	if err := p.resolve(ctx, u.Hostname()); err != nil {
		return p.connError(err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetUsername(p.config.Username)
	opts.SetPassword(p.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(p.config.ConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		GetLogger().Info("connected to MQTT broker", logger.String("broker", p.config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		GetLogger().Warn("connection to MQTT broker lost",
			logger.String("broker", p.config.Broker),
			logger.Error(err))
	})

	client := p.newClient(opts)
	if err := wait(ctx, client.Connect(), p.config.ConnectTimeout); err != nil {
		return p.connError(err)
	}
	p.client = client
	return nil
}

func resolveHost(ctx context.Context, host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return errors.New(err).
			Component("notify").
			Category(errors.CategoryNetwork).
			Context("host", host).
			Build()
	}
	return nil
}

// PublishPass publishes the summary of one pass as JSON.
func (p *Publisher) PublishPass(ctx context.Context, uid string, r catchsync.Result) error {
	payload, err := json.Marshal(NewPassEventDTO(uid, &r))
	if err != nil {
		return errors.New(err).
			Component("notify").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(ctx); err != nil {
		return err
	}

	token := p.client.Publish(p.config.Topic, 0, p.config.Retain, payload)
	if err := wait(ctx, token, p.config.PublishTimeout); err != nil {
		return errors.New(err).
			Component("notify").
			Category(errors.CategoryMQTTPublish).
			Context("topic", p.config.Topic).
			Build()
	}

	GetLogger().Debug("sync summary published",
		logger.String("topic", p.config.Topic),
		logger.Int("bytes", len(payload)))
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(uint(p.config.DisconnectQuiesce.Milliseconds()))
		p.client = nil
	}
}

func (p *Publisher) connError(err error) error {
	return errors.New(err).
		Component("notify").
		Category(errors.CategoryMQTTConnection).
		Context("broker", p.config.Broker).
		Build()
}

// wait blocks until the token completes, ctx is done or timeout elapses.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.NewStd("timed out waiting for broker")
	}
}
