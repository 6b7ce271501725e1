package stats

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE
	TERABYTE
)

// EnableStatistics starts a goroutine that periodically logs memory usage,
// number of goroutines and the state of every feed of the registry.
// When ctx is done, the default prometheus metrics are appended to dumpPath,
// if not empty.
func EnableStatistics(
	ctx context.Context, interval time.Duration,
	registry *marketfeed.Registry, dumpPath string,
) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics()
				PrintNumOfRoutines()
				PrintFeedStatistics(registry)
			case <-ctx.Done():
				if len(dumpPath) <= 0 {
					return
				}
				if err := DumpPrometheusDefaults(dumpPath); err != nil {
					log.WithError(err).Warn("failed to dump metrics")
				}
				return
			}
		}
	}()
}

// toGigabytes returns given memory in bytes to gigabytes.
func toGigabytes(bytes uint64) float64 {
	return float64(bytes) / GIGABYTE
}

// PrintMemoryStatistics prints memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Infof(
		"Total allocated: %.3fGB, Heap allocated: %.3fGB, "+
			"Allocated objects count: %v, Freed objects count: %v",
		toGigabytes(memStats.TotalAlloc),
		toGigabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

// PrintNumOfRoutines prints number of go routines currently running
func PrintNumOfRoutines() {
	log.Infof("Num of go routines: %v", runtime.NumGoroutine())
}

// PrintFeedStatistics prints state and listeners of every feed.
func PrintFeedStatistics(registry *marketfeed.Registry) {
	for _, feed := range registry.Feeds() {
		fields := log.Fields{
			"feed":  feed.Type(),
			"kind":  feed.Kind(),
			"state": feed.State(),
		}
		for _, event := range marketfeed.EventNames() {
			fields["listeners_"+string(event)] = feed.ListenerCount(event)
		}
		if deadline, ok := feed.ReconnectDeadline(); ok {
			fields["reconnect_in"] = time.Until(deadline).Round(time.Millisecond)
		}
		log.WithFields(fields).Info("feed status")
	}
}

// DumpPrometheusDefaults appends default Prometheus metrics to the given file
func DumpPrometheusDefaults(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	metricFamily, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, v := range metricFamily {
		if _, err := writer.WriteString(v.String() + "\n"); err != nil {
			return err
		}
	}

	return writer.Flush()
}
