package marketfeed

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionOpens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketfeed",
		Name:      "opens_total",
		Help:      "Connection attempts by feed and result.",
	}, []string{"feed", "result"})

	connectionCloses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketfeed",
		Name:      "closes_total",
		Help:      "Connection closes by feed.",
	}, []string{"feed"})

	watchdogFires = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketfeed",
		Name:      "watchdog_timeouts_total",
		Help:      "Connections closed because no data was received in time.",
	}, []string{"feed"})

	teardownErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketfeed",
		Name:      "teardown_errors_total",
		Help:      "Errors swallowed while tearing down a connection.",
	}, []string{"feed"})

	publishedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketfeed",
		Name:      "events_total",
		Help:      "Events published by feed and event name.",
	}, []string{"feed", "event"})

	droppedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketfeed",
		Name:      "events_dropped_total",
		Help:      "Events dropped because a listener queue was full.",
	}, []string{"feed", "event"})

	feedState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "marketfeed",
		Name:      "state",
		Help:      "Current lifecycle state of each feed.",
	}, []string{"feed"})
)

func init() {
	prometheus.MustRegister(
		connectionOpens, connectionCloses, watchdogFires, teardownErrors,
		publishedEvents, droppedEvents, feedState,
	)
}
