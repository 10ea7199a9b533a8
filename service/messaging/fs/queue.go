package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/fluxgate/service/messaging"
)

const (
	pendingDir    = "pending"
	processingDir = "processing"
	failedDir     = "failed"
	dlqDir        = "dlq"
)

// Message is a queue entry persisted as one JSON document.
type Message[T any] struct {
	MessageID string    `json:"id"`
	Data      T         `json:"data"`
	Retries   int       `json:"retries"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	name      string
	queue     *Queue[T]
	mu        sync.Mutex
	processed bool
}

func (m *Message[T]) ID() string    { return m.MessageID }
func (m *Message[T]) T() *T         { return &m.Data }
func (m *Message[T]) Attempts() int { return m.Retries }

// Ack removes the message from the processing directory.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.MessageID)
	}
	m.processed = true
	return m.queue.complete(context.Background(), m)
}

// Nack moves the message to the failed directory, or to the dead letter
// directory once MaxRetries is exceeded.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.MessageID)
	}
	m.processed = true
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = time.Now()
	return m.queue.fail(context.Background(), m)
}

// Config holds configuration for filesystem queue
type Config struct {
	BasePath   string        `json:"basePath" yaml:"basePath"`
	MaxRetries int           `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay time.Duration `json:"retryDelay" yaml:"retryDelay"`
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{
		BasePath:   "/tmp/fluxgate/outbox",
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Queue is a messaging.Queue storing one file per message on any afs backed
// storage (file://, mem://, s3://, gs://). Messages are consumed oldest
// first; Consume does not block and returns (nil, nil) when empty.
type Queue[T any] struct {
	fs     afs.Service
	config Config
	mu     sync.Mutex
}

// NewQueue creates the queue directories under config.BasePath.
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	q := &Queue[T]{fs: fs, config: config}
	ctx := context.Background()
	for _, dir := range []string{pendingDir, processingDir, failedDir, dlqDir} {
		location := q.dir(dir)
		if exists, _ := fs.Exists(ctx, location); exists {
			continue
		}
		if err := fs.Create(ctx, location, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", location, err)
		}
	}
	return q, nil
}

func (q *Queue[T]) dir(name string) string {
	return url.Join(q.config.BasePath, name)
}

// Publish writes the message to the pending directory.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("payload was nil")
	}
	now := time.Now()
	message := &Message[T]{
		MessageID: uuid.New().String(),
		Data:      *t,
		CreatedAt: now,
		UpdatedAt: now,
	}
	message.name = fmt.Sprintf("%020d-%s.json", now.UnixNano(), message.MessageID)
	return q.write(ctx, url.Join(q.dir(pendingDir), message.name), message)
}

// Consume claims the oldest retry-eligible failed message, otherwise the
// oldest pending one.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, err := q.claim(ctx, failedDir, func(m *Message[T]) bool {
		return time.Since(m.UpdatedAt) >= q.config.RetryDelay
	})
	if err != nil || message != nil {
		return q.result(message, err)
	}
	return q.result(q.claim(ctx, pendingDir, nil))
}

func (q *Queue[T]) result(message *Message[T], err error) (messaging.Message[T], error) {
	if err != nil || message == nil {
		return nil, err
	}
	return message, nil
}

func (q *Queue[T]) claim(ctx context.Context, dir string, eligible func(m *Message[T]) bool) (*Message[T], error) {
	objects, err := q.list(ctx, dir)
	if err != nil {
		return nil, err
	}
	for _, object := range objects {
		message, err := q.read(ctx, object.URL())
		if err != nil {
			_ = q.fs.Move(ctx, object.URL(), url.Join(q.dir(dlqDir), "invalid-"+object.Name()))
			return nil, err
		}
		if eligible != nil && !eligible(message) {
			continue
		}
		message.name = object.Name()
		message.queue = q
		if err = q.fs.Move(ctx, object.URL(), url.Join(q.dir(processingDir), object.Name())); err != nil {
			return nil, fmt.Errorf("failed to claim message %s: %w", message.MessageID, err)
		}
		return message, nil
	}
	return nil, nil
}

func (q *Queue[T]) list(ctx context.Context, dir string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, q.dir(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s messages: %w", dir, err)
	}
	var ret []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			ret = append(ret, object)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

// Pending returns the number of messages waiting in the given state
// directory: "pending", "failed" or "dlq".
func (q *Queue[T]) Pending(ctx context.Context, dir string) (int, error) {
	objects, err := q.list(ctx, dir)
	return len(objects), err
}

func (q *Queue[T]) complete(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fs.Delete(ctx, url.Join(q.dir(processingDir), m.name))
}

func (q *Queue[T]) fail(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	dest := failedDir
	if m.Retries > q.config.MaxRetries {
		dest = dlqDir
	}
	if err := q.write(ctx, url.Join(q.dir(dest), m.name), m); err != nil {
		return err
	}
	return q.fs.Delete(ctx, url.Join(q.dir(processingDir), m.name))
}

func (q *Queue[T]) write(ctx context.Context, location string, m *Message[T]) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", m.MessageID, err)
	}
	if err = q.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write message %s: %w", m.MessageID, err)
	}
	return nil
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	message := &Message[T]{}
	if err := json.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", URL, err)
	}
	return message, nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
