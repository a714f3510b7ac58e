package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/state"
)

// subscriberBuffer is the event backlog of one subscriber. Events are
// dropped for subscribers that fall further behind.
const subscriberBuffer = 64

// Manager runs crawl jobs in the background as tasks with an id, a status
// and a live event stream. Finished tasks are persisted to the store.
type Manager struct {
	engine *Engine
	store  state.Store
	log    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

type task struct {
	record  state.TaskRecord
	result  *CrawlResult
	cancel  context.CancelFunc
	subs    map[int]chan Event
	nextSub int
	done    chan struct{}
}

// NewManager creates a manager. A nil store keeps tasks in memory.
func NewManager(engine *Engine, store state.Store) *Manager {
	if store == nil {
		store = state.NewMemoryStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine: engine,
		store:  store,
		log:    engine.log.WithComponent("tasks"),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}
}

// ErrManagerClosed is returned by Start after Shutdown.
var ErrManagerClosed = errors.New("task manager is shut down")

// Start validates job and runs it in the background. It returns the task id.
// The job's own observer, if any, still receives every event.
func (m *Manager) Start(job Job) (string, error) {
	start, err := normalizeURL(job.StartURL)
	if err != nil {
		return "", err
	}
	job.StartURL = start
	if err := job.Policy.Validate(); err != nil {
		return "", cerrors.NewPolicyError(start, err.Error())
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	ctx, cancel := context.WithCancel(m.ctx)
	t := &task{
		record: state.TaskRecord{
			ID:        uuid.NewString(),
			StartURL:  start,
			State:     state.TaskRunning,
			CreatedAt: time.Now(),
		},
		cancel: cancel,
		subs:   make(map[int]chan Event),
		done:   make(chan struct{}),
	}
	m.tasks[t.record.ID] = t
	rec := t.record
	m.wg.Add(1)
	m.mu.Unlock()

	log := m.log.WithTask(rec.ID)
	if err := m.store.SaveTask(&rec); err != nil {
		log.Event(logger.WarnLevel).Err(err).Msg("Failed to persist task")
	}

	userObserver := job.Observer
	job.Observer = func(ev Event) {
		m.observe(t, ev)
		if userObserver != nil {
			userObserver(ev)
		}
	}

	go m.run(ctx, t, job)

	log.Event(logger.InfoLevel).Str("url", start).Msg("Crawl task started")
	return rec.ID, nil
}

func (m *Manager) run(ctx context.Context, t *task, job Job) {
	defer m.wg.Done()
	defer t.cancel()

	result, err := m.engine.Run(ctx, job)

	m.mu.Lock()
	t.result = result
	t.record.FinishedAt = time.Now()
	switch {
	case err == nil:
		t.record.State = state.TaskCompleted
	case cerrors.GetErrorType(err) == cerrors.Cancelled || ctx.Err() != nil:
		t.record.State = state.TaskCancelled
		t.record.Error = err.Error()
	default:
		t.record.State = state.TaskFailed
		t.record.Error = err.Error()
	}
	if result != nil {
		t.record.PagesCrawled = result.PagesCrawled
		t.record.Depth = result.MaxDepthReached
		t.record.Queue = 0
		if data, mErr := json.Marshal(result); mErr == nil {
			t.record.Result = data
		}
	}
	rec := t.record
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	close(t.done)
	m.mu.Unlock()

	// Persisted tasks are served from the store from now on; a task that
	// could not be saved stays in memory with its result.
	log := m.log.WithTask(rec.ID)
	if err := m.store.SaveTask(&rec); err != nil {
		log.Event(logger.WarnLevel).Err(err).Msg("Failed to persist task")
	} else {
		m.mu.Lock()
		delete(m.tasks, rec.ID)
		m.mu.Unlock()
	}
	log.Event(logger.InfoLevel).
		Str("state", string(rec.State)).
		Int("pages", rec.PagesCrawled).
		Msg("Crawl task finished")
}

// observe updates the live status of t and fans ev out to subscribers.
func (m *Manager) observe(t *task, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.record.PagesCrawled = ev.PagesCrawled
	t.record.Queue = ev.Queue
	if ev.Depth > t.record.Depth {
		t.record.Depth = ev.Depth
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) notFound(id string) error {
	return cerrors.NewNotFoundError("", "task "+id)
}

// Status returns the current record of task id, looking in the store for
// tasks of earlier runs.
func (m *Manager) Status(id string) (*state.TaskRecord, error) {
	m.mu.Lock()
	if t, ok := m.tasks[id]; ok {
		rec := t.record
		m.mu.Unlock()
		return &rec, nil
	}
	m.mu.Unlock()

	rec, err := m.store.LoadTask(id)
	if errors.Is(err, state.ErrNotFound) {
		return nil, m.notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return rec, nil
}

// Result returns the crawl result of a finished task.
func (m *Manager) Result(id string) (*CrawlResult, error) {
	rec, err := m.Status(id)
	if err != nil {
		return nil, err
	}
	if !rec.State.Terminal() {
		return nil, cerrors.NewNotFoundError(rec.StartURL, "result of running task "+id)
	}

	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if ok && t.result != nil {
		return t.result, nil
	}

	if len(rec.Result) == 0 {
		return nil, cerrors.NewNotFoundError(rec.StartURL, "result of task "+id)
	}
	var result CrawlResult
	if err := json.Unmarshal(rec.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode task result: %w", err)
	}
	return &result, nil
}

// Cancel stops a running task. Cancelling a finished task is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		if _, err := m.Status(id); err != nil {
			return err
		}
		return nil
	}
	t.cancel()
	return nil
}

// Subscribe returns the live events of task id and a function that ends
// the subscription. The channel is closed when the task finishes; for a
// finished task it is returned closed.
func (m *Manager) Subscribe(id string) (<-chan Event, func(), error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		if _, err := m.Status(id); err != nil {
			return nil, nil, err
		}
		ch := make(chan Event)
		close(ch)
		return ch, func() {}, nil
	}
	defer m.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if t.record.State.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	sub := t.nextSub
	t.nextSub++
	t.subs[sub] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := t.subs[sub]; ok {
				close(c)
				delete(t.subs, sub)
			}
		})
	}
	return ch, unsubscribe, nil
}

// Wait blocks until task id finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*state.TaskRecord, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return m.Status(id)
	}
	select {
	case <-t.done:
		return m.Status(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// List returns all known tasks, oldest first, without their results.
func (m *Manager) List() ([]*state.TaskRecord, error) {
	stored, err := m.store.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range stored {
		if t, ok := m.tasks[rec.ID]; ok {
			live := t.record
			live.Result = nil
			stored[i] = &live
		} else {
			rec.Result = nil
		}
	}
	return stored, nil
}

// Active returns the number of running tasks.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.record.State.Terminal() {
			n++
		}
	}
	return n
}

// Shutdown cancels every running task and waits for them to finish or
// for ctx to expire. Later calls return nil.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for crawl tasks: %w", ctx.Err())
	}
}
