package api

import "filedrop/internal/jobs"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Error codes reported in ErrorResponse.Code.
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeJobNotFound   = "JOB_NOT_FOUND"
	CodeFileNotFound  = "FILE_NOT_FOUND"
	CodeBadRequest    = "BAD_REQUEST"
	CodeTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeInternalError = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse answers GET /api/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// PendingResponse answers GET /api/jobs/pending.
type PendingResponse struct {
	Success      bool       `json:"success"`
	Jobs         []jobs.Job `json:"jobs"`
	Count        int        `json:"count"`
	TotalInQueue int64      `json:"totalInQueue"`
}

// CompleteRequest is the optional body of POST /api/jobs/{jobId}/complete.
type CompleteRequest struct {
	ClientID string `json:"clientId,omitempty"`
}

// CompletedJob summarizes a job after completion.
type CompletedJob struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	CompletedAt string `json:"completedAt"`
}

// CompleteResponse answers POST /api/jobs/{jobId}/complete.
type CompleteResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Job     CompletedJob `json:"job"`
}

// UploadedJob summarizes a job created by an upload.
type UploadedJob struct {
	ID         string `json:"id"`
	FileName   string `json:"fileName"`
	Size       int64  `json:"size"`
	UploadedAt string `json:"uploadedAt"`
}

// UploadResponse answers POST /api/upload.
type UploadResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Jobs    []UploadedJob `json:"jobs"`
}

// QueueCounts reports list lengths.
type QueueCounts struct {
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
}

// Limits reports the upload constraints enforced by the server.
type Limits struct {
	MaxFileBytes int64 `json:"maxFileBytes"`
	MaxFiles     int   `json:"maxFiles"`
}

// StatusResponse answers GET /api/status.
type StatusResponse struct {
	Status         string      `json:"status"`
	Version        string      `json:"version"`
	StartedAt      string      `json:"startedAt"`
	UptimeSeconds  int64       `json:"uptimeSeconds"`
	Queue          QueueCounts `json:"queue"`
	UploadDir      string      `json:"uploadDir"`
	FreeBytes      uint64      `json:"freeBytes"`
	AuthEnabled    bool        `json:"authEnabled"`
	DeleteOnFinish bool        `json:"deleteAfterDownload"`
	Limits         Limits      `json:"limits"`
}
