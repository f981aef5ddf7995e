package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "schedlist/internal/log"
	"schedlist/internal/profile"
)

// ErrBusy is returned when a batch is requested while another one runs.
var ErrBusy = errors.New("aggregate: a batch is already running")

// Publisher persists the output of one profile. It must write all of the
// profile's artifacts or none of them.
type Publisher interface {
	Publish(ctx context.Context, out *Output) error
}

// Result is the outcome of one profile in a batch.
type Result struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	OK         bool          `json:"ok"`
	Error      string        `json:"error,omitempty"`
	Activities int           `json:"activities"`
	Duration   time.Duration `json:"duration_ns"`
}

// Batch summarizes one run over a set of profiles.
type Batch struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Failed counts the profiles that produced no output.
func (b *Batch) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK {
			n++
		}
	}
	return n
}

// Runner processes profile files sequentially. A profile failure is logged
// and reported, and never stops the rest of the batch.
type Runner struct {
	ProfilesDir string
	Fetcher     profile.Fetcher
	Loader      CourseLoader
	Publisher   Publisher
	Languages   []string

	// Now and Stdout default to time.Now and os.Stdout.
	Now    func() time.Time
	Stdout io.Writer

	runMu sync.Mutex

	mu   sync.RWMutex
	last *Batch
}

// Discover lists the profile files in dir, sorted by name.
func Discover(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// RunAll processes every profile found in ProfilesDir.
func (r *Runner) RunAll(ctx context.Context) (*Batch, error) {
	paths, err := Discover(r.ProfilesDir)
	if err != nil {
		return nil, fmt.Errorf("discover profiles: %w", err)
	}
	return r.Run(ctx, paths)
}

// Run processes the given profile files in order. It returns ErrBusy if
// another batch is in progress.
func (r *Runner) Run(ctx context.Context, paths []string) (*Batch, error) {
	if !r.runMu.TryLock() {
		return nil, ErrBusy
	}
	defer r.runMu.Unlock()

	b := &Batch{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		Results:   make([]Result, 0, len(paths)),
	}
	appLog.Info("batch start", "run", b.ID, "profiles", len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			appLog.Error("batch interrupted", err, "run", b.ID)
			break
		}
		res := r.runOne(ctx, b.ID, path)
		b.Results = append(b.Results, res)
	}

	b.FinishedAt = r.now()
	appLog.Info("batch done", "run", b.ID, "profiles", len(b.Results), "failed", b.Failed(),
		"elapsed", b.FinishedAt.Sub(b.StartedAt).String())

	r.mu.Lock()
	r.last = b
	r.mu.Unlock()
	return b, nil
}

// Last returns the most recently completed batch, or nil.
func (r *Runner) Last() *Batch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	cp.Results = append([]Result(nil), r.last.Results...)
	return &cp
}

func (r *Runner) runOne(ctx context.Context, runID, path string) Result {
	start := time.Now()
	res := Result{Name: profile.NameFromPath(path), Path: path}

	n, err := r.process(ctx, path)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		appLog.Error("profile failed", err, "run", runID, "profile", res.Name)
		fmt.Fprintf(r.stdout(), "failed to load %s\n%v\n", path, err)
		return res
	}

	res.OK = true
	res.Activities = n
	appLog.Info("profile done", "run", runID, "profile", res.Name, "activities", n, "elapsed", res.Duration.String())
	return res
}

func (r *Runner) process(ctx context.Context, path string) (int, error) {
	p, err := profile.Load(ctx, path, r.Fetcher)
	if err != nil {
		return 0, err
	}

	out, err := Build(ctx, p, r.Loader, r.Languages, r.now())
	if err != nil {
		return 0, err
	}

	if r.Publisher != nil {
		if err := r.Publisher.Publish(ctx, out); err != nil {
			return 0, fmt.Errorf("publish: %w", err)
		}
	}
	return len(out.Activities), nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}
