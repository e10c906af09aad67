package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minofeel/TuringBot/internal/chatlog"
	"github.com/minofeel/TuringBot/internal/events"
	"github.com/minofeel/TuringBot/internal/ringbuf"
	"github.com/minofeel/TuringBot/internal/version"
)

const metricsNamespace = "turingbot"

var (
	metricsMu       sync.RWMutex
	metricsRegistry *prometheus.Registry
	botName         string
	startTime       = time.Now()
)

// InitMetrics builds the Prometheus registry. Every metric carries the bot
// name and release as constant labels and is computed at scrape time.
func InitMetrics(name string) {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	botName = name
	startTime = time.Now()
	metricsRegistry = newMetricsRegistry(name)
}

// GetBotName returns the name metrics and alerts are labelled with.
func GetBotName() string {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return botName
}

func newMetricsRegistry(name string) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"bot": name, "version": version.Version}

	gauge := func(metric, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, fn)
	}
	counter := func(metric, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, fn)
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		gauge("uptime_seconds", "Seconds since the bot started.", func() float64 {
			metricsMu.RLock()
			defer metricsMu.RUnlock()
			return time.Since(startTime).Seconds()
		}),
		gauge("buffer_pending", "Messages waiting in the buffer.", func() float64 {
			return float64(bufferStats().Pending)
		}),
		gauge("buffer_capacity", "Current buffer storage length in slots.", func() float64 {
			return float64(bufferStats().Capacity)
		}),
		counter("buffer_writes_total", "Messages written to the buffer.", func() float64 {
			return float64(bufferStats().Writes)
		}),
		counter("buffer_reads_total", "Messages read from the buffer.", func() float64 {
			return float64(bufferStats().Reads)
		}),
		counter("buffer_dropped_total", "Messages discarded because the buffer was full.", func() float64 {
			return float64(bufferStats().Drops)
		}),
		counter("buffer_grows_total", "Buffer grow operations.", func() float64 {
			return float64(bufferStats().Grows)
		}),
		counter("buffer_shrinks_total", "Buffer shrink operations.", func() float64 {
			return float64(bufferStats().Shrinks)
		}),
		counter("relay_delivered_total", "Messages appended to the message log.", func() float64 {
			return float64(relayStats().Delivered)
		}),
		counter("relay_failed_total", "Messages the message log rejected.", func() float64 {
			return float64(relayStats().Failed)
		}),
		counter("events_total", "Diagnostic events emitted since startup.", func() float64 {
			return float64(events.TotalCount())
		}),
		gauge("ws_clients", "Active websocket event subscribers.", func() float64 {
			return float64(events.SubscriberCount())
		}),
		gauge("mqtt_connected", "Whether the MQTT broker is connected (1) or not (0).", func() float64 {
			mqttUp, _ := connectionStates()
			return boolFloat(mqttUp)
		}),
		gauge("postgres_connected", "Whether PostgreSQL is connected (1) or not (0).", func() float64 {
			_, pgUp := connectionStates()
			return boolFloat(pgUp)
		}),
	)
	return reg
}

func bufferStats() ringbuf.Stats {
	if b := currentDeps().Buffer; b != nil {
		return b.Stats()
	}
	return ringbuf.Stats{}
}

func relayStats() chatlog.RelayStats {
	if r := currentDeps().Relay; r != nil {
		return r.Stats()
	}
	return chatlog.RelayStats{}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// metricsHandler serves the registry built by InitMetrics, building a
// default one on first use.
func metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		metricsMu.Lock()
		if metricsRegistry == nil {
			metricsRegistry = newMetricsRegistry(botName)
		}
		reg := metricsRegistry
		metricsMu.Unlock()

		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
