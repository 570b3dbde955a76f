package risk

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aybabtme/uniplot/histogram"
)

// Recorder appends one equity snapshot per risk tick to a CSV file so
// pnl history survives restarts and can be charted externally.
type Recorder struct {
	mu   sync.Mutex
	path string

	samples []float64
}

// NewRecorder opens (or creates) the pnl history file under dir and
// writes the header when the file is fresh
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder dir: %w", err)
	}
	path := filepath.Join(dir, "pnl_history.csv")

	info, err := os.Stat(path)
	fresh := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder open: %w", err)
	}
	defer f.Close()

	if fresh {
		w := csv.NewWriter(f)
		if err := w.Write([]string{"timestamp", "total_equity", "pnl_usdt", "pnl_percent"}); err != nil {
			return nil, fmt.Errorf("recorder header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("recorder header: %w", err)
		}
	}
	return &Recorder{path: path}, nil
}

// Record appends a snapshot. Failures are returned but the in-memory
// sample series is kept regardless so the shutdown report still works.
func (r *Recorder) Record(t time.Time, equity, pnl, pnlPercent float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, pnlPercent)

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("recorder append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	record := []string{
		t.UTC().Format(time.RFC3339),
		strconv.FormatFloat(equity, 'f', 2, 64),
		strconv.FormatFloat(pnl, 'f', 2, 64),
		strconv.FormatFloat(pnlPercent, 'f', 4, 64),
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("recorder append: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Summary prints the pnl distribution collected this run. Called once
// on shutdown.
func (r *Recorder) Summary(out io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) < 2 {
		return
	}
	fmt.Fprintln(out, "------ PNL DISTRIBUTION (%) -------")
	hist := histogram.Hist(15, r.samples)
	_ = histogram.Fprint(out, hist, histogram.Linear(10))
	fmt.Fprintln(out)
}
