package api

import (
	"time"

	"filedrop/internal/jobs"
)

// FormatTime renders t in API timestamp format. Zero times render empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromCompletedJob converts a completed job to its response summary.
func FromCompletedJob(job jobs.Job) CompletedJob {
	dto := CompletedJob{ID: job.ID, FileName: job.OriginalName}
	if job.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*job.CompletedAt)
	}
	return dto
}

// FromUploadedJobs converts freshly accepted jobs to upload summaries.
func FromUploadedJobs(list []jobs.Job) []UploadedJob {
	out := make([]UploadedJob, 0, len(list))
	for _, job := range list {
		out = append(out, UploadedJob{
			ID:         job.ID,
			FileName:   job.OriginalName,
			Size:       job.Size,
			UploadedAt: FormatTime(job.CreatedAt),
		})
	}
	return out
}

// NewPendingResponse wraps a pending listing.
func NewPendingResponse(list []jobs.Job, total int64) PendingResponse {
	if list == nil {
		list = []jobs.Job{}
	}
	return PendingResponse{Success: true, Jobs: list, Count: len(list), TotalInQueue: total}
}
