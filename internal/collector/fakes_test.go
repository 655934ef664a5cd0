package collector

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"filedrop/internal/jobs"
	"filedrop/internal/notifications"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	n := len(c.sleeps)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakeProducer serves canned bodies and records calls.
type fakeProducer struct {
	mu        sync.Mutex
	pending   map[string][]jobs.Job
	bodies    map[string][]byte
	healthErr error
	pollErr   map[string]error
	// downloadErrs are returned, in order, before bodies are served.
	downloadErrs []error
	completeErr  error
	pollPanic    bool

	// calls records health checks and polls in order, as "health:<ep>" and
	// "poll:<ep>".
	calls     []string
	polls     []string
	downloads int
	completed []string
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{
		pending: make(map[string][]jobs.Job),
		bodies:  make(map[string][]byte),
		pollErr: make(map[string]error),
	}
}

func (p *fakeProducer) add(ep string, job jobs.Job, body []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[ep] = append(p.pending[ep], job)
	p.bodies[job.ID] = body
}

func (p *fakeProducer) Health(_ context.Context, ep *Endpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "health:"+ep.Name)
	return p.healthErr
}

func (p *fakeProducer) ListPending(_ context.Context, ep *Endpoint, limit int) ([]jobs.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls = append(p.polls, ep.Name)
	p.calls = append(p.calls, "poll:"+ep.Name)
	if p.pollPanic {
		panic("boom")
	}
	if err := p.pollErr[ep.Name]; err != nil {
		return nil, err
	}
	list := p.pending[ep.Name]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]jobs.Job(nil), list...), nil
}

func (p *fakeProducer) Download(_ context.Context, _ *Endpoint, jobID string) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloads++
	if len(p.downloadErrs) > 0 {
		err := p.downloadErrs[0]
		p.downloadErrs = p.downloadErrs[1:]
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(p.bodies[jobID])), nil
}

func (p *fakeProducer) Complete(_ context.Context, ep *Endpoint, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completeErr != nil {
		return p.completeErr
	}
	p.completed = append(p.completed, jobID)
	list := p.pending[ep.Name]
	for i, job := range list {
		if job.ID == jobID {
			p.pending[ep.Name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.last = payload
	return nil
}
