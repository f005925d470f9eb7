package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// TopicCampaignRuns carries model.RunJob messages.
const TopicCampaignRuns = "campaign_runs"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue runs handlers on goroutines in this process, with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	wg       sync.WaitGroup
	logger   *zap.Logger

	// MaxRetries and Backoff apply to every job; Backoff is multiplied by the attempt number.
	MaxRetries int
	Backoff    time.Duration
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		logger:     logger,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: q.MaxRetries,
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.processJob(topic, handler, job)
		}()
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			q.logger.Debug("Job processed", zap.String("topic", topic), zap.Any("payload", job.Payload))
			return // ACK
		}

		job.RetryCount++
		q.logger.Warn("Job failed",
			zap.String("topic", topic),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Any("payload", job.Payload),
			zap.Error(err),
		)

		if job.RetryCount > job.MaxRetries {
			q.logger.Error("Job permanently failed", zap.String("topic", topic), zap.Any("payload", job.Payload))
			return // No requeue
		}

		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// DecodeRunJob accepts a RunJob published in-process or the JSON body of a
// broker delivery.
func DecodeRunJob(payload any) (model.RunJob, error) {
	switch p := payload.(type) {
	case model.RunJob:
		return p, nil
	case *model.RunJob:
		if p == nil {
			return model.RunJob{}, fmt.Errorf("nil run job")
		}
		return *p, nil
	case []byte:
		return unmarshalRunJob(p)
	case json.RawMessage:
		return unmarshalRunJob(p)
	default:
		return model.RunJob{}, fmt.Errorf("unexpected run job payload %T", payload)
	}
}

func unmarshalRunJob(data []byte) (model.RunJob, error) {
	var job model.RunJob
	if err := json.Unmarshal(data, &job); err != nil {
		return model.RunJob{}, fmt.Errorf("invalid run job: %w", err)
	}
	if job.CampaignID == "" {
		return model.RunJob{}, fmt.Errorf("invalid run job: campaign id is required")
	}
	return job, nil
}
