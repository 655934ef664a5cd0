package jobs

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"filedrop/internal/fileutil"
)

// Status represents the lifecycle of a job record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Separator joins the enqueue timestamp and the original file name inside a
// stored name. Intake skips any file whose name already contains it.
const Separator = "___"

// Job is one unit of work: a single file awaiting download.
type Job struct {
	ID           string     `json:"id"`
	OriginalName string     `json:"originalName"`
	StoredName   string     `json:"storedName"`
	Size         int64      `json:"size"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Status       Status     `json:"status"`
}

// New builds a pending job for a file that has already been renamed to its
// stored name.
func New(originalName string, size int64, createdAt time.Time) Job {
	return Job{
		ID:           uuid.NewString(),
		OriginalName: originalName,
		StoredName:   StoredName(createdAt, originalName),
		Size:         size,
		CreatedAt:    createdAt.UTC(),
		Status:       StatusPending,
	}
}

// StoredName returns "<epoch millis>___<originalName>".
func StoredName(at time.Time, originalName string) string {
	return strconv.FormatInt(at.UnixMilli(), 10) + Separator + originalName
}

// Place moves src into dir under the stored name for (originalName, at) and
// returns the matching pending job. Stored names never collide: while one is
// taken the timestamp moves forward a millisecond.
func Place(src, dir, originalName string, size int64, at time.Time) (Job, error) {
	stamp := func(n int) time.Time { return at.Add(time.Duration(n) * time.Millisecond) }
	_, n, err := fileutil.Place(src, func(n int) string {
		return filepath.Join(dir, StoredName(stamp(n), originalName))
	}, 1000)
	if err != nil {
		return Job{}, err
	}
	return New(originalName, size, stamp(n)), nil
}

// OriginalName strips the timestamp prefix from a stored name. Names without a
// separator are returned unchanged.
func OriginalName(stored string) string {
	if _, rest, ok := strings.Cut(stored, Separator); ok {
		return rest
	}
	return stored
}

// HasSeparator reports whether name looks like an already-processed file.
func HasSeparator(name string) bool {
	return strings.Contains(name, Separator)
}

// Completed returns a copy of j marked completed at the supplied time.
func (j Job) Completed(at time.Time) Job {
	done := at.UTC()
	j.CompletedAt = &done
	j.Status = StatusCompleted
	return j
}

// Encode serializes the job into the value stored in the queue lists.
func Encode(j Job) (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return string(data), nil
}

// Decode parses a queue list value.
func Decode(raw string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if strings.TrimSpace(j.ID) == "" {
		return Job{}, fmt.Errorf("decode job: missing id")
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	return j, nil
}
