// Package api implements the producer's job operations and defines the wire
// types shared by the HTTP server and the collector client.
//
// # Key Types
//
// JobService: list, download, complete and accept jobs against a queue.Queue
// and the upload directory. It also evicts stale jobs whose files vanished.
//
// PendingResponse, CompleteResponse, UploadResponse, StatusResponse: JSON
// payloads for the /api routes.
//
// # Design Notes
//
// DTOs use camelCase JSON tags, matching the original browser and client
// consumers. Timestamps use RFC3339 with milliseconds. A job's wire form is
// jobs.Job itself so producer and collector never disagree on field names.
//
// Errors are classified with faults markers: ErrJobNotFound and ErrFileMissing
// both wrap faults.ErrNotFound so the HTTP layer maps them to 404 while still
// reporting distinct codes.
package api
