// Package history archives the results of finished runs.
//
// Each run is stored under its run ID, and the most recent run is also
// reachable through [Store.Latest]. [FileStore] keeps entries as JSON files
// with an optional retention period; [NullStore] keeps nothing.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	bterrors "github.com/matzehuels/batchtower/pkg/errors"
	"github.com/matzehuels/batchtower/pkg/scheduler"
)

// Entry is the archived summary of one run.
type Entry struct {
	RunID      string             `json:"run_id"`
	Config     string             `json:"config,omitempty"`
	ConfigHash string             `json:"config_hash,omitempty"`
	State      string             `json:"state"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Total      int                `json:"total"`
	Launched   []string           `json:"launched"`
	Completed  []string           `json:"completed"`
	Failed     []string           `json:"failed,omitempty"`
	Timings    []scheduler.Timing `json:"timings"`
	ErrorCode  string             `json:"error_code,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Duration returns the wall-clock time of the run.
func (e Entry) Duration() time.Duration { return e.End.Sub(e.Start) }

// FromResult builds an entry from a scheduler result and the error that
// ended the run, if any.
func FromResult(res *scheduler.Result, runErr error) Entry {
	e := Entry{
		RunID:     res.RunID,
		State:     res.State.String(),
		Start:     res.Start,
		End:       res.End,
		Total:     res.Total,
		Launched:  res.Launched,
		Completed: res.Completed,
		Failed:    res.Failed,
		Timings:   res.Timings,
	}
	if runErr != nil {
		e.ErrorCode = string(bterrors.GetCode(runErr))
		e.Error = runErr.Error()
	}
	return e
}

// Store persists run entries.
type Store interface {
	// Save archives e and makes it the latest entry.
	Save(ctx context.Context, e Entry) error

	// Get returns the entry for runID. The bool is false when no entry
	// exists or it has expired.
	Get(ctx context.Context, runID string) (Entry, bool, error)

	// Latest returns the most recently saved entry.
	Latest(ctx context.Context) (Entry, bool, error)

	// Close releases the store's resources.
	Close() error
}

// Hash returns the hex SHA-256 of data. Runs record the hash of their
// configuration file so archived entries can be matched to the exact
// configuration that produced them.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
