package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

const (
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
	AlertBufferDropping      = "buffer_dropping"
)

const webhookTimeout = 10 * time.Second

// AlertPayload is the body POSTed to the alert webhook.
type AlertPayload struct {
	Bot       string                 `json:"bot"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// outage turns a stream of up/down samples into one alert after the
// dependency has been down for delay, and one recovery alert when it returns.
type outage struct {
	event    string
	severity string
	downMsg  string
	upMsg    string
	delay    time.Duration

	downSince time.Time
	alerted   bool
}

func (o *outage) reset() {
	o.downSince = time.Time{}
	o.alerted = false
}

// observe records a sample and returns the alert to send, if any.
func (o *outage) observe(up bool, now time.Time) *AlertPayload {
	if up {
		wasAlerted := o.alerted
		o.reset()
		if !wasAlerted {
			return nil
		}
		return &AlertPayload{Event: o.event, Severity: SeverityInfo, Message: o.upMsg,
			Details: map[string]interface{}{"recovered_at": now.UTC().Format(time.RFC3339)}}
	}

	if o.downSince.IsZero() {
		o.downSince = now
	}
	down := now.Sub(o.downSince)
	if o.alerted || down < o.delay {
		return nil
	}
	o.alerted = true
	return &AlertPayload{Event: o.event, Severity: o.severity, Message: o.downMsg,
		Details: map[string]interface{}{
			"disconnected_since":   o.downSince.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(down.Seconds()),
		}}
}

type alertState struct {
	mu      sync.Mutex
	webhook string
	enabled bool

	mqtt     outage
	postgres outage

	lastDrops    uint64
	dropsAlerted bool
}

var alerts = &alertState{
	mqtt: outage{event: AlertMQTTDisconnected, severity: SeverityWarning,
		downMsg: "MQTT broker disconnected", upMsg: "MQTT connection restored", delay: 30 * time.Second},
	postgres: outage{event: AlertPostgresUnavailable, severity: SeverityCritical,
		downMsg: "PostgreSQL unavailable", upMsg: "PostgreSQL connection restored", delay: 5 * time.Second},
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if s := os.Getenv(name); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		log.Printf("ignoring %s=%q: not a duration", name, s)
	}
	return fallback
}

// InitAlerts reads TURINGBOT_ALERT_WEBHOOK_URL and the optional
// TURINGBOT_MQTT_ALERT_DELAY / TURINGBOT_POSTGRES_ALERT_DELAY, and resets
// all tracking. Without a webhook, alerts go to the process log.
func InitAlerts() {
	alerts.mu.Lock()
	defer alerts.mu.Unlock()

	alerts.webhook = os.Getenv("TURINGBOT_ALERT_WEBHOOK_URL")
	alerts.mqtt.delay = envDuration("TURINGBOT_MQTT_ALERT_DELAY", 30*time.Second)
	alerts.postgres.delay = envDuration("TURINGBOT_POSTGRES_ALERT_DELAY", 5*time.Second)
	alerts.mqtt.reset()
	alerts.postgres.reset()
	alerts.lastDrops = 0
	alerts.dropsAlerted = false
	alerts.enabled = true

	if alerts.webhook != "" {
		log.Printf("alert webhook configured (mqtt_delay=%s, pg_delay=%s)",
			alerts.mqtt.delay, alerts.postgres.delay)
	}
}

// GetAlertWebhookURL returns the configured webhook URL.
func GetAlertWebhookURL() string {
	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	return alerts.webhook
}

// SendAlert posts an alert to the webhook without blocking the caller.
func SendAlert(event, severity, message string, details map[string]interface{}) {
	dispatch(AlertPayload{Event: event, Severity: severity, Message: message, Details: details})
}

func dispatch(p AlertPayload) {
	alerts.mu.Lock()
	url := alerts.webhook
	alerts.mu.Unlock()

	if url == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", p.Event, p.Severity, p.Message, p.Details)
		return
	}

	p.Bot = GetBotName()
	if p.Bot == "" {
		p.Bot = "unknown"
	}
	p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	go postWebhook(url, p)
}

func postWebhook(url string, p AlertPayload) {
	body, err := json.Marshal(p)
	if err != nil {
		log.Printf("alert: marshal %s: %v", p.Event, err)
		return
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

func observeOutage(o *outage, up bool) {
	alerts.mu.Lock()
	if !alerts.enabled {
		alerts.mu.Unlock()
		return
	}
	p := o.observe(up, time.Now())
	alerts.mu.Unlock()

	if p != nil {
		dispatch(*p)
	}
}

// CheckAndAlertMQTT feeds one broker connection sample to the alerter.
func CheckAndAlertMQTT(connected bool) {
	observeOutage(&alerts.mqtt, connected)
}

// CheckAndAlertPostgres feeds one database connection sample to the alerter.
func CheckAndAlertPostgres(connected bool) {
	observeOutage(&alerts.postgres, connected)
}

// CheckAndAlertBufferDrops alerts once when the buffer starts discarding
// messages and again when a check passes with no new drops.
func CheckAndAlertBufferDrops(drops uint64) {
	alerts.mu.Lock()
	if !alerts.enabled {
		alerts.mu.Unlock()
		return
	}

	if drops < alerts.lastDrops {
		alerts.lastDrops = drops
	}
	newDrops := drops - alerts.lastDrops
	alerts.lastDrops = drops

	var p *AlertPayload
	switch {
	case newDrops > 0 && !alerts.dropsAlerted:
		alerts.dropsAlerted = true
		p = &AlertPayload{Event: AlertBufferDropping, Severity: SeverityWarning,
			Message: "message buffer full, messages are not being logged",
			Details: map[string]interface{}{"dropped": newDrops, "dropped_total": drops}}
	case newDrops == 0 && alerts.dropsAlerted:
		alerts.dropsAlerted = false
		p = &AlertPayload{Event: AlertBufferDropping, Severity: SeverityInfo,
			Message: "message buffer drops stopped",
			Details: map[string]interface{}{"dropped_total": drops}}
	}
	alerts.mu.Unlock()

	if p != nil {
		dispatch(*p)
	}
}

// StartAlertMonitor samples connection states and buffer drops every
// checkInterval until ctx is cancelled.
func StartAlertMonitor(ctx context.Context, checkInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			mqttUp, pgUp := connectionStates()
			CheckAndAlertMQTT(mqttUp)
			CheckAndAlertPostgres(pgUp)
			CheckAndAlertBufferDrops(bufferStats().Drops)
		}
	}()
}
