package api

import (
	"net/http"
	"sort"
	"strings"
	"sync"
)

const (
	checkOK          = "ok"
	checkNotReady    = "not_ready"
	checkUnavailable = "unavailable"
)

// readinessState tracks the connection state of external dependencies.
type readinessState struct {
	mu                sync.RWMutex
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{}

// CheckStatus is the result of one readiness check.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

// ReadinessResponse is the body of GET /ready.
type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// SetMQTTState records the broker connection. An optional dependency that is
// down reports "unavailable" without failing readiness.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
	readiness.mu.Unlock()
}

// SetMQTTConnected updates the broker connection, keeping its optional flag.
func SetMQTTConnected(connected bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mu.Unlock()
}

// SetPostgresState records the database connection.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
	readiness.mu.Unlock()
}

// SetPostgresConnected updates the database connection, keeping its optional flag.
func SetPostgresConnected(connected bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.mu.Unlock()
}

func connectionStates() (mqttConnected, postgresConnected bool) {
	readiness.mu.RLock()
	defer readiness.mu.RUnlock()
	return readiness.mqttConnected, readiness.postgresConnected
}

func dependencyCheck(connected, optional bool) (CheckStatus, bool) {
	switch {
	case connected:
		return CheckStatus{Status: checkOK, Optional: optional}, true
	case optional:
		return CheckStatus{Status: checkUnavailable, Optional: true}, true
	default:
		return CheckStatus{Status: checkNotReady}, false
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]CheckStatus, 3)
	var reasons []string

	relayRunning := false
	if relay := currentDeps().Relay; relay != nil {
		relayRunning = relay.Stats().Running
	}
	if relayRunning {
		checks["relay"] = CheckStatus{Status: checkOK}
	} else {
		checks["relay"] = CheckStatus{Status: checkNotReady}
		reasons = append(reasons, "relay not running")
	}

	readiness.mu.RLock()
	mqttCheck, mqttOK := dependencyCheck(readiness.mqttConnected, readiness.mqttOptional)
	pgCheck, pgOK := dependencyCheck(readiness.postgresConnected, readiness.postgresOptional)
	readiness.mu.RUnlock()

	checks["mqtt"] = mqttCheck
	if !mqttOK {
		reasons = append(reasons, "mqtt not connected")
	}
	checks["postgres"] = pgCheck
	if !pgOK {
		reasons = append(reasons, "postgres not connected")
	}

	resp := ReadinessResponse{Ready: len(reasons) == 0, Checks: checks}
	status := http.StatusOK
	if !resp.Ready {
		sort.Strings(reasons)
		resp.NotReadyMsg = strings.Join(reasons, "; ")
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
