package metrics

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/trafficsim/internal/sim"
)

// LineLog appends one delimited line per sample to a writer. The format is
// timestamp|sim_time_ms|active|incidents|mean_speed|p85_speed.
type LineLog struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewLineLog opens (or creates) the log file at path for appending.
func NewLineLog(path string) (*LineLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics log: %w", err)
	}
	return &LineLog{w: f}, nil
}

// Record implements sim.Recorder.
func (l *LineLog) Record(s sim.Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.w, "%s|%d|%d|%d|%.2f|%.2f\n",
		time.Now().UTC().Format(time.RFC3339),
		s.SimTime.Milliseconds(), s.ActiveVehicles, s.Incidents,
		s.MeanSpeed, s.P85Speed)
	return err
}

// Close closes the underlying file.
func (l *LineLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// MultiRecorder fans each sample out to every recorder and returns the
// first error seen.
type MultiRecorder []sim.Recorder

func (m MultiRecorder) Record(s sim.Sample) error {
	var first error
	for _, r := range m {
		if err := r.Record(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
