package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// fakeRunner executes items via a configurable function.
type fakeRunner struct {
	fn func(ctx context.Context, item models.WorkItem) (models.WorkResult, error)
}

func (r *fakeRunner) Run(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
	return r.fn(ctx, item)
}

type fakeFactory struct {
	fn func(ctx context.Context, item models.WorkItem) (models.WorkResult, error)
}

func (f *fakeFactory) NewRunner() Runner {
	return &fakeRunner{fn: f.fn}
}

func succeedFactory() *fakeFactory {
	return &fakeFactory{fn: func(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
		return models.WorkResult{
			Success:   true,
			Artifacts: []models.Artifact{{Name: "out.txt", Content: item.Payload.Instructions}},
			CostDelta: 1,
		}, nil
	}}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing factory",
			cfg:     Config{Roster: []models.Specialty{models.SpecialtyGeneral}},
			wantErr: true,
		},
		{
			name:    "empty roster",
			cfg:     Config{Roster: nil, Factory: succeedFactory()},
			wantErr: true,
		},
		{
			name: "oversized roster",
			cfg: Config{
				Roster:  make([]models.Specialty, 51),
				Factory: succeedFactory(),
			},
			wantErr: true,
		},
		{
			name: "invalid specialty",
			cfg: Config{
				Roster:  []models.Specialty{models.Specialty("juggling")},
				Factory: succeedFactory(),
			},
			wantErr: true,
		},
		{
			name: "valid single worker",
			cfg: Config{
				Roster:  []models.Specialty{models.SpecialtyGeneral},
				Factory: succeedFactory(),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPool_SubmitAndWait(t *testing.T) {
	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyGeneral},
		Factory: succeedFactory(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	future, err := p.Submit(models.WorkItem{
		Specialty: models.SpecialtyGeneral,
		Payload:   models.WorkPayload{Instructions: "hello"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.Success {
		t.Errorf("result.Success = false, want true: %s", result.Error)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0].Content != "hello" {
		t.Errorf("unexpected artifacts: %+v", result.Artifacts)
	}
	if result.WorkerID == "" {
		t.Error("result.WorkerID should be set")
	}
}

func TestPool_GeneralistFallback(t *testing.T) {
	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyGeneral},
		Factory: succeedFactory(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	// No engineering worker exists, so the generalist picks this up.
	future, err := p.Submit(models.WorkItem{
		Specialty: models.SpecialtyEngineering,
		Payload:   models.WorkPayload{Instructions: "build"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.Success {
		t.Errorf("fallback execution failed: %s", result.Error)
	}
}

func TestPool_NoWorkerNoGeneralist(t *testing.T) {
	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyWriting},
		Factory: succeedFactory(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	_, err = p.Submit(models.WorkItem{Specialty: models.SpecialtyEngineering})
	if err == nil {
		t.Fatal("Submit should fail when no matching worker and no generalist exist")
	}
}

func TestPool_FIFOOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	factory := &fakeFactory{fn: func(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
		mu.Lock()
		order = append(order, item.Payload.Instructions)
		mu.Unlock()
		return models.WorkResult{Success: true}, nil
	}}

	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyGeneral},
		Factory: factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	var futures []*Future
	for i := 0; i < 5; i++ {
		f, err := p.Submit(models.WorkItem{
			Specialty: models.SpecialtyGeneral,
			Payload:   models.WorkPayload{Instructions: fmt.Sprintf("item-%d", i)},
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		futures = append(futures, f)
	}
	for _, f := range futures {
		if _, err := f.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		want := fmt.Sprintf("item-%d", i)
		if got != want {
			t.Errorf("execution order[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestPool_Timeout(t *testing.T) {
	factory := &fakeFactory{fn: func(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
		select {
		case <-ctx.Done():
			return models.WorkResult{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return models.WorkResult{Success: true}, nil
		}
	}}

	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyGeneral},
		Factory: factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	future, err := p.Submit(models.WorkItem{
		Specialty: models.SpecialtyGeneral,
		Timeout:   50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Success {
		t.Error("timed-out item should not succeed")
	}
	if result.ErrorKind != models.ErrorTimeout {
		t.Errorf("ErrorKind = %q, want %q", result.ErrorKind, models.ErrorTimeout)
	}
}

func TestPool_WorkerErrorRetriesOnce(t *testing.T) {
	var calls atomic.Int32

	// First call errors unexpectedly, the retry on the second worker succeeds.
	factory := &fakeFactory{fn: func(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
		if calls.Add(1) == 1 {
			return models.WorkResult{}, errors.New("connection reset")
		}
		return models.WorkResult{Success: true}, nil
	}}

	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyGeneral, models.SpecialtyGeneral},
		Factory: factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	future, err := p.Submit(models.WorkItem{Specialty: models.SpecialtyGeneral})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !result.Success {
		t.Errorf("retried item should succeed, got: %s", result.Error)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("runner called %d times, want 2 (original + one retry)", got)
	}

	// The errored worker must be out of rotation.
	errored := 0
	for _, w := range p.Stats() {
		if w.Status == models.WorkerErrored {
			errored++
		}
	}
	if errored != 1 {
		t.Errorf("errored workers = %d, want 1", errored)
	}
}

func TestPool_WorkerErrorReroutesQueuedItems(t *testing.T) {
	// Two engineering items against a single engineering worker: the first
	// occupies it, the second waits in the engineering queue. When the
	// worker errors, the queued item must drain to the generalist instead
	// of waiting for a worker that will never come back.
	release := make(chan struct{})
	var firstCalls atomic.Int32

	factory := &fakeFactory{fn: func(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
		if item.Payload.Instructions == "first" && firstCalls.Add(1) == 1 {
			<-release
			return models.WorkResult{}, errors.New("connection reset")
		}
		return models.WorkResult{Success: true}, nil
	}}

	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyEngineering, models.SpecialtyGeneral},
		Factory: factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	fut1, err := p.Submit(models.WorkItem{
		Specialty: models.SpecialtyEngineering,
		Payload:   models.WorkPayload{Instructions: "first"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	fut2, err := p.Submit(models.WorkItem{
		Specialty: models.SpecialtyEngineering,
		Payload:   models.WorkPayload{Instructions: "second"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res1, err := fut1.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait on retried item: %v", err)
	}
	if !res1.Success {
		t.Errorf("retried item should succeed on the generalist, got: %s", res1.Error)
	}

	res2, err := fut2.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait on queued item: %v", err)
	}
	if !res2.Success {
		t.Errorf("queued item should be rerouted to the generalist, got: %s", res2.Error)
	}
}

func TestPool_WorkerErrorFailsQueuedItemsWithoutRoute(t *testing.T) {
	// No generalist to fall back to: when the only worker errors, the
	// queued item must fail promptly rather than sit in a dead queue.
	release := make(chan struct{})
	factory := &fakeFactory{fn: func(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
		<-release
		return models.WorkResult{}, errors.New("persistent fault")
	}}

	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyEngineering},
		Factory: factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fut1, err := p.Submit(models.WorkItem{Specialty: models.SpecialtyEngineering})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	fut2, err := p.Submit(models.WorkItem{Specialty: models.SpecialtyEngineering})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i, fut := range []*Future{fut1, fut2} {
		res, err := fut.Wait(ctx)
		if err != nil {
			t.Fatalf("Wait on item %d: %v", i+1, err)
		}
		if res.Success {
			t.Errorf("item %d should fail with no worker left", i+1)
		}
		if res.ErrorKind != models.ErrorWorker {
			t.Errorf("item %d ErrorKind = %q, want %q", i+1, res.ErrorKind, models.ErrorWorker)
		}
	}
}

func TestPool_WorkerErrorExhaustsRetry(t *testing.T) {
	factory := &fakeFactory{fn: func(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
		return models.WorkResult{}, errors.New("persistent fault")
	}}

	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyGeneral, models.SpecialtyGeneral},
		Factory: factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	future, err := p.Submit(models.WorkItem{Specialty: models.SpecialtyGeneral})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Success {
		t.Error("item should fail after the single retry is exhausted")
	}
	if result.ErrorKind != models.ErrorWorker {
		t.Errorf("ErrorKind = %q, want %q", result.ErrorKind, models.ErrorWorker)
	}
}

func TestPool_Stats(t *testing.T) {
	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyGeneral, models.SpecialtyResearch},
		Factory: succeedFactory(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	future, err := p.Submit(models.WorkItem{Specialty: models.SpecialtyResearch})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := future.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	stats := p.Stats()
	if len(stats) != 2 {
		t.Fatalf("Stats() returned %d workers, want 2", len(stats))
	}

	completed := 0
	for _, w := range stats {
		completed += w.Stats.ItemsCompleted
	}
	if completed != 1 {
		t.Errorf("total completed items = %d, want 1", completed)
	}
}

func TestPool_CloseFailsQueuedItems(t *testing.T) {
	block := make(chan struct{})
	factory := &fakeFactory{fn: func(ctx context.Context, item models.WorkItem) (models.WorkResult, error) {
		<-block
		return models.WorkResult{Success: true}, nil
	}}

	p, err := New(Config{
		Roster:  []models.Specialty{models.SpecialtyGeneral},
		Factory: factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// First item occupies the only worker; second sits in the queue.
	running, err := p.Submit(models.WorkItem{Specialty: models.SpecialtyGeneral})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	queued, err := p.Submit(models.WorkItem{Specialty: models.SpecialtyGeneral})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	// Close fails the queued item while the first is still running.
	result, err := queued.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Success {
		t.Error("queued item should be failed by Close")
	}

	close(block)
	if _, err := running.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on running item: %v", err)
	}
	<-done

	if _, err := p.Submit(models.WorkItem{Specialty: models.SpecialtyGeneral}); err == nil {
		t.Error("Submit after Close should fail")
	}
}
