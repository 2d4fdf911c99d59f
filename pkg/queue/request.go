package queue

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	ErrEmptyRequest      = errors.New("sync request has no sources")
	ErrInvalidSource     = errors.New("invalid source name")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SyncRequest names the known sources to sync, in order.
type SyncRequest struct {
	Sources   []string
	CreatedAt time.Time
}

// NewSyncRequest builds a request stamped with the current UTC time.
func NewSyncRequest(sources ...string) (SyncRequest, error) {
	if len(sources) == 0 {
		return SyncRequest{}, ErrEmptyRequest
	}
	names := make([]string, 0, len(sources))
	for i, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			return SyncRequest{}, fmt.Errorf("%w: position %d is blank", ErrInvalidSource, i)
		}
		names = append(names, s)
	}
	return SyncRequest{Sources: names, CreatedAt: time.Now().UTC()}, nil
}

type Status int32

const (
	StatusSubmitted Status = iota
	StatusRunning
	StatusFinishedWithErrors
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "Submitted"
	case StatusRunning:
		return "Running"
	case StatusFinishedWithErrors:
		return "FinishedWithErrors"
	case StatusFinished:
		return "Finished"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Done reports whether s is terminal.
func (s Status) Done() bool {
	return s == StatusFinished || s == StatusFinishedWithErrors
}

// RequestContext tracks one submitted request through its lifecycle.
// Status is safe for concurrent reads while a worker advances it.
type RequestContext struct {
	ID      string
	Request SyncRequest

	admitted   atomic.Bool
	status     atomic.Int32
	startedAt  atomic.Int64
	finishedAt atomic.Int64
}

func newRequestContext(req SyncRequest) *RequestContext {
	return &RequestContext{
		ID:      uuid.New().String(),
		Request: req,
	}
}

// Admitted reports whether the request made it into the pending queue.
func (rc *RequestContext) Admitted() bool {
	return rc.admitted.Load()
}

func (rc *RequestContext) Status() Status {
	return Status(rc.status.Load())
}

// StartedAt is zero until the request starts running.
func (rc *RequestContext) StartedAt() time.Time {
	return unixNano(rc.startedAt.Load())
}

// FinishedAt is zero until the request reaches a terminal status.
func (rc *RequestContext) FinishedAt() time.Time {
	return unixNano(rc.finishedAt.Load())
}

// MarkRunning moves a submitted request to Running.
func (rc *RequestContext) MarkRunning() error {
	if err := rc.transition(StatusSubmitted, StatusRunning); err != nil {
		return err
	}
	rc.startedAt.Store(time.Now().UTC().UnixNano())
	return nil
}

// MarkFinished moves a running request to Finished, or FinishedWithErrors
// when hadErrors is set.
func (rc *RequestContext) MarkFinished(hadErrors bool) error {
	to := StatusFinished
	if hadErrors {
		to = StatusFinishedWithErrors
	}
	if err := rc.transition(StatusRunning, to); err != nil {
		return err
	}
	rc.finishedAt.Store(time.Now().UTC().UnixNano())
	return nil
}

func (rc *RequestContext) transition(from, to Status) error {
	if !rc.status.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, rc.Status())
	}
	return nil
}

type requestContextJSON struct {
	ID         string     `json:"id"`
	Sources    []string   `json:"sources"`
	CreatedAt  time.Time  `json:"createdAt"`
	Admitted   bool       `json:"admitted"`
	Status     Status     `json:"status"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (rc *RequestContext) MarshalJSON() ([]byte, error) {
	out := requestContextJSON{
		ID:        rc.ID,
		Sources:   rc.Request.Sources,
		CreatedAt: rc.Request.CreatedAt,
		Admitted:  rc.Admitted(),
		Status:    rc.Status(),
	}
	if t := rc.StartedAt(); !t.IsZero() {
		out.StartedAt = &t
	}
	if t := rc.FinishedAt(); !t.IsZero() {
		out.FinishedAt = &t
	}
	return json.Marshal(out)
}

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
