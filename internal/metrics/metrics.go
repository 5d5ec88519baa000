// Package metrics provides Prometheus metrics for port allocation, process
// lifecycles and supervised servers.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devsup"

var (
	portProbes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "port_probes_total",
		Help:      "Ephemeral port probes sent to the OS",
	})

	processSpawns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "process_spawns_total",
		Help:      "Processes started",
	})

	processKills = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "process_kills_total",
		Help:      "Process terminations by outcome",
	}, []string{"outcome"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "process_exits_total",
		Help:      "Processes that exited without being killed, by exit code class",
	}, []string{"status"})

	serverTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "server_transitions_total",
		Help:      "Supervisor state transitions by target state",
	}, []string{"server", "state"})

	serverCrashes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "server_crashes_total",
		Help:      "Servers that exited on their own while running",
	}, []string{"server"})

	serverUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_up",
		Help:      "Whether the server is running (1) or not (0)",
	}, []string{"server"})

	serversRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "servers_running",
		Help:      "Servers currently running",
	})

	// Running set backing serversRunning.
	running   = make(map[string]bool)
	runningMu sync.Mutex
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePortProbe counts one OS port probe.
func ObservePortProbe() {
	portProbes.Inc()
}

// ObserveSpawn counts one started process.
func ObserveSpawn() {
	processSpawns.Inc()
}

// ObserveExit records how a process ended. outcome is "exited",
// "graceful" or "forced"; code is the exit code for "exited".
func ObserveExit(outcome string, code int) {
	if outcome != "exited" {
		processKills.WithLabelValues(outcome).Inc()
		return
	}
	status := "success"
	if code != 0 {
		status = "failure"
	}
	processExits.WithLabelValues(status).Inc()
}

// ObserveTransition records a supervisor entering state.
func ObserveTransition(server, state string) {
	serverTransitions.WithLabelValues(server, state).Inc()
	setRunning(server, state == "running")
}

// ObserveCrash counts an unexpected server exit.
func ObserveCrash(server string) {
	serverCrashes.WithLabelValues(server).Inc()
}

// DeleteServer removes every series labelled with server.
func DeleteServer(server string) {
	serverUp.DeleteLabelValues(server)
	serverCrashes.DeleteLabelValues(server)
	serverTransitions.DeletePartialMatch(prometheus.Labels{"server": server})

	runningMu.Lock()
	delete(running, server)
	serversRunning.Set(float64(len(running)))
	runningMu.Unlock()
}

// RunningServers returns the number of servers currently running.
func RunningServers() int {
	runningMu.Lock()
	defer runningMu.Unlock()
	return len(running)
}

func setRunning(server string, up bool) {
	runningMu.Lock()
	defer runningMu.Unlock()

	if up {
		running[server] = true
		serverUp.WithLabelValues(server).Set(1)
	} else {
		delete(running, server)
		serverUp.WithLabelValues(server).Set(0)
	}
	serversRunning.Set(float64(len(running)))
}
