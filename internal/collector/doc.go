// Package collector implements the consumer side: it polls one or more
// producers in priority order, downloads pending files into per-endpoint
// directories and acknowledges each completed transfer.
//
// The Scheduler owns pacing (a pure NextWait decides the pause between
// cycles), the Executor owns a single job's retries and placement, and the
// HTTPClient maps transport failures to faults markers. Time is injected
// through Clock so tests run without sleeping.
package collector
