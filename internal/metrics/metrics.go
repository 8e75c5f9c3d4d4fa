package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes shared by every stage
const (
	Read      = "read"
	Malformed = "malformed"
	Emitted   = "emitted"
	Dropped   = "dropped"
)

// DropReason names the outcome of a record dropped for the given reason
func DropReason(reason string) string {
	return Dropped + ":" + reason
}

// Observer receives one outcome per processed record
type Observer interface {
	Observe(stage, outcome string)
}

type discard struct{}

func (discard) Observe(string, string) {}

// Discard is an Observer that ignores everything
var Discard Observer = discard{}

// OrDiscard returns o, or Discard when o is nil
func OrDiscard(o Observer) Observer {
	if o == nil {
		return Discard
	}
	return o
}

// Summary holds run statistics for export on exit
type Summary struct {
	RunID             string                      `json:"run_id"`
	Stage             string                      `json:"stage"`
	StartTime         time.Time                   `json:"start_time"`
	EndTime           time.Time                   `json:"end_time"`
	Counts            map[string]map[string]int64 `json:"counts"`
	DurationMs        int64                       `json:"duration_ms"`
	TerminationReason string                      `json:"termination_reason"`
}

// Tracker holds and manages run metrics
type Tracker struct {
	mu       sync.Mutex
	data     Summary
	registry *prometheus.Registry
	records  *prometheus.CounterVec
}

// NewTracker creates a new metrics tracker for a pipeline stage
func NewTracker(stage string) *Tracker {
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linkweaver",
		Name:      "records_total",
		Help:      "Records processed per stage, partitioned by outcome.",
	}, []string{"stage", "outcome"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(records)

	return &Tracker{
		data: Summary{
			RunID:     uuid.NewString(),
			Stage:     stage,
			StartTime: time.Now(),
			Counts:    make(map[string]map[string]int64),
		},
		registry: registry,
		records:  records,
	}
}

// Observe increments the counter for a stage outcome
func (t *Tracker) Observe(stage, outcome string) {
	t.Add(stage, outcome, 1)
}

// Add increases the counter for a stage outcome by n
func (t *Tracker) Add(stage, outcome string, n int64) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	byOutcome, ok := t.data.Counts[stage]
	if !ok {
		byOutcome = make(map[string]int64)
		t.data.Counts[stage] = byOutcome
	}
	byOutcome[outcome] += n
	t.records.WithLabelValues(stage, outcome).Add(float64(n))
}

// Count returns the current value of a stage outcome counter
func (t *Tracker) Count(stage, outcome string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Counts[stage][outcome]
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Summary {
	snapshot := t.data
	snapshot.Counts = make(map[string]map[string]int64, len(t.data.Counts))
	for stage, byOutcome := range t.data.Counts {
		c := make(map[string]int64, len(byOutcome))
		for outcome, n := range byOutcome {
			c[outcome] = n
		}
		snapshot.Counts[stage] = c
	}
	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.DurationMs = t.data.EndTime.Sub(t.data.StartTime).Milliseconds()

	jsonData, err := json.MarshalIndent(t.snapshotLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// WriteTextfile exports the counters in the Prometheus text format,
// suitable for the node exporter textfile collector
func (t *Tracker) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, t.registry); err != nil {
		return fmt.Errorf("failed to write prometheus textfile: %w", err)
	}
	return nil
}

// LogProgress renders current counters on one line (for periodic updates)
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	stages := make([]string, 0, len(t.data.Counts))
	for stage := range t.data.Counts {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		byOutcome := t.data.Counts[stage]
		var dropped int64
		for outcome, n := range byOutcome {
			if outcome == Dropped || strings.HasPrefix(outcome, Dropped+":") {
				dropped += n
			}
		}
		parts = append(parts, fmt.Sprintf("%s: %d read, %d emitted, %d dropped, %d malformed",
			stage,
			byOutcome[Read],
			byOutcome[Emitted],
			dropped,
			byOutcome[Malformed],
		))
	}
	if len(parts) == 0 {
		return "no records processed yet"
	}
	return strings.Join(parts, " | ")
}
