// Package sampledata implements the sample-data job: an asynchronous job
// that seeds a space with generated entries for one form, progressing
// queued -> running -> completed|failed.
package sampledata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/model"
)

// Status is the job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job tracks one sample-data generation run.
type Job struct {
	ID        string    `json:"id"`
	Form      string    `json:"form"`
	Requested int       `json:"requested"`
	Created   int       `json:"created"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Runner submits sample-data jobs against one space's entry engine and
// form registry.
type Runner struct {
	engine   *entries.Engine
	registry *forms.Registry
	author   string

	mu   sync.Mutex
	jobs map[string]*Job
}

func NewRunner(engine *entries.Engine, registry *forms.Registry, author string) *Runner {
	return &Runner{engine: engine, registry: registry, author: author, jobs: map[string]*Job{}}
}

// Submit queues a job to create count sample entries for formName and
// starts it on a background goroutine, returning immediately with the
// queued job record.
func (r *Runner) Submit(ctx context.Context, formName string, count int) *Job {
	job := &Job{ID: uuid.NewString(), Form: formName, Requested: count, Status: StatusQueued}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	go r.run(ctx, job)
	return job
}

// Get returns a job's current snapshot, NotFound if the id is unknown.
func (r *Runner) Get(jobID string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ieerr.NotFound("sample-data job not found: %s", jobID)
	}
	cp := *job
	return &cp, nil
}

func (r *Runner) setStatus(job *Job, mutate func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(job)
}

func (r *Runner) run(ctx context.Context, job *Job) {
	r.setStatus(job, func(j *Job) { j.Status = StatusRunning; j.StartedAt = time.Now() })

	form, err := r.registry.GetForm(ctx, job.Form)
	if err != nil {
		r.setStatus(job, func(j *Job) { j.Status = StatusFailed; j.Error = err.Error(); j.EndedAt = time.Now() })
		return
	}

	// Each sample gets its own entry id, so the writes are independent and
	// can run concurrently; cap fan-out so a large count doesn't flood the
	// store with simultaneous writes.
	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := 0; i < job.Requested; i++ {
		i := i
		g.Go(func() error {
			raw := renderSampleMarkdown(form, i)
			if _, err := r.engine.CreateEntry(gctx, uuid.NewString(), raw, r.author); err != nil {
				return err
			}
			created.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.setStatus(job, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
			j.Created = int(created.Load())
			j.EndedAt = time.Now()
		})
		return
	}

	r.setStatus(job, func(j *Job) {
		j.Status = StatusCompleted
		j.Created = int(created.Load())
		j.EndedAt = time.Now()
	})
}

// renderSampleMarkdown builds a synthetic markdown document for form,
// populating every field with a deterministic placeholder value typed per the field casting rules.
func renderSampleMarkdown(form *model.Form, index int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "---\nform: %s\n---\n", form.Name)
	fmt.Fprintf(&b, "# %s sample %d\n", form.Name, index)
	for _, fd := range form.Fields {
		fmt.Fprintf(&b, "\n## %s\n%s\n", fd.Name, sampleValue(fd, index))
	}
	return b.String()
}

func sampleValue(fd model.FieldDef, index int) string {
	switch fd.Type {
	case model.FieldNumber, model.FieldDouble, model.FieldFloat:
		return strconv.FormatFloat(float64(index)+0.5, 'f', 2, 64)
	case model.FieldInteger, model.FieldLong:
		return strconv.Itoa(index)
	case model.FieldBoolean:
		return strconv.FormatBool(index%2 == 0)
	case model.FieldDate:
		return time.Unix(0, 0).UTC().AddDate(0, 0, index).Format("2006-01-02")
	case model.FieldTime:
		return fmt.Sprintf("%02d:00:00", index%24)
	case model.FieldTimestamp, model.FieldTimestampTZ, model.FieldTimestampNS, model.FieldTimestampTZNS:
		return time.Unix(0, 0).UTC().AddDate(0, 0, index).Format(time.RFC3339)
	case model.FieldUUID:
		return uuid.NewString()
	case model.FieldList:
		return fmt.Sprintf("- item-%d-a\n- item-%d-b", index, index)
	case model.FieldObjectList:
		return fmt.Sprintf(`[{"type":"note","name":"n%d","description":"sample"}]`, index)
	default:
		return fmt.Sprintf("sample value %d", index)
	}
}
