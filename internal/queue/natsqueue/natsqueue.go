// Package natsqueue is a durable job queue on NATS JetStream.
// Redelivery is driven by NakWithDelay; exhausted jobs are terminated and published to a dead-letter subject.
package natsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain/job"
	"github.com/kailas-cloud/fedsearch/internal/queue"
)

// Config describes the stream and consumer group.
type Config struct {
	URL               string
	Name              string
	Stream            string
	Subject           string
	DeadLetterSubject string
	Group             string
	Workers           int
	AckWait           time.Duration
	HandlerTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "fedsearch"
	}
	if c.Stream == "" {
		c.Stream = "FEDSEARCH_JOBS"
	}
	if c.Subject == "" {
		c.Subject = "fedsearch.jobs"
	}
	if c.DeadLetterSubject == "" {
		c.DeadLetterSubject = c.Subject + ".dead"
	}
	if c.Group == "" {
		c.Group = "fedsearch-workers"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.AckWait <= 0 {
		c.AckWait = 2 * time.Minute
	}
	// Handlers must give up before JetStream redelivers the message.
	if c.HandlerTimeout <= 0 || c.HandlerTimeout >= c.AckWait {
		c.HandlerTimeout = c.AckWait - c.AckWait/10
	}
}

// Queue publishes and consumes jobs through one JetStream stream.
type Queue struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    Config
	policy queue.RetryPolicy
	sink   queue.FailureSink
	logger *zap.Logger
}

var (
	_ queue.Queue    = (*Queue)(nil)
	_ queue.Consumer = (*Queue)(nil)
)

// New connects, then creates the stream if it does not exist.
func New(cfg Config, policy queue.RetryPolicy, sink queue.FailureSink, logger *zap.Logger) (*Queue, error) {
	cfg.applyDefaults()

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(3 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected, buffering messages", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	q := &Queue{nc: nc, js: js, cfg: cfg, policy: policy, logger: logger}
	q.sink = queue.Sinks{sink, deadLetter{q: q}}

	if err := q.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureStream() error {
	_, err := q.js.StreamInfo(q.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", q.cfg.Stream, err)
	}
	_, err = q.js.AddStream(&nats.StreamConfig{
		Name:      q.cfg.Stream,
		Subjects:  []string{q.cfg.Subject, q.cfg.DeadLetterSubject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", q.cfg.Stream, err)
	}
	q.logger.Info("Created job stream", zap.String("stream", q.cfg.Stream))
	return nil
}

// Enqueue publishes jobs. The job id doubles as the JetStream dedup id.
func (q *Queue) Enqueue(ctx context.Context, jobs ...job.Job) error {
	for _, j := range jobs {
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", j.ID, err)
		}
		if _, err := q.js.Publish(q.cfg.Subject, data, nats.MsgId(j.ID), nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish job %s: %w", j.ID, err)
		}
	}
	return nil
}

// Run binds Workers queue subscriptions to the durable group and blocks until ctx is done.
// JetStream calls each subscription's callback serially, so the subscription count is the worker count.
func (q *Queue) Run(ctx context.Context, h queue.Handler) error {
	subs := make([]*nats.Subscription, 0, q.cfg.Workers)
	defer func() {
		for _, s := range subs {
			_ = s.Drain()
		}
	}()

	for range q.cfg.Workers {
		sub, err := q.js.QueueSubscribe(q.cfg.Subject, q.cfg.Group, func(msg *nats.Msg) {
			q.handle(ctx, h, natsDelivery{msg: msg})
		},
			nats.Durable(q.cfg.Group),
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.DeliverAll(),
			nats.AckWait(q.cfg.AckWait),
			nats.MaxDeliver(q.maxDeliver()),
			nats.MaxAckPending(q.cfg.Workers*2),
		)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", q.cfg.Subject, err)
		}
		subs = append(subs, sub)
	}

	q.logger.Info("Consuming jobs",
		zap.String("subject", q.cfg.Subject),
		zap.String("group", q.cfg.Group),
		zap.Int("workers", q.cfg.Workers),
	)
	<-ctx.Done()
	return nil
}

// errUnacknowledged marks a delivery that arrived after the retry budget was spent.
var errUnacknowledged = errors.New("retry budget exhausted without acknowledgement")

func (q *Queue) attempts() int { return max(q.policy.MaxAttempts, 1) }

// maxDeliver allows one delivery past the retry budget, so a last attempt that
// overran AckWait still reaches the failure sink instead of expiring silently.
func (q *Queue) maxDeliver() int { return q.attempts() + 1 }

// delivery abstracts the acknowledgement surface of a message.
type delivery interface {
	Data() []byte
	Attempt() int
	Ack() error
	NakWithDelay(d time.Duration) error
	Term() error
}

type natsDelivery struct {
	msg *nats.Msg
}

func (d natsDelivery) Data() []byte { return d.msg.Data }

func (d natsDelivery) Attempt() int {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (d natsDelivery) Ack() error                         { return d.msg.Ack() }
func (d natsDelivery) NakWithDelay(t time.Duration) error { return d.msg.NakWithDelay(t) }
func (d natsDelivery) Term() error                        { return d.msg.Term() }

func (q *Queue) handle(ctx context.Context, h queue.Handler, d delivery) {
	var j job.Job
	if err := json.Unmarshal(d.Data(), &j); err != nil {
		q.logger.Error("Dropping undecodable job", zap.Error(err))
		if err := d.Term(); err != nil {
			q.logger.Warn("Failed to terminate message", zap.Error(err))
		}
		return
	}
	j.Attempt = max(d.Attempt(), 1)
	if j.Attempt > q.attempts() {
		q.fail(ctx, d, j, fmt.Errorf("attempt %d: %w", j.Attempt, errUnacknowledged))
		return
	}

	hctx, cancel := context.WithTimeout(ctx, q.cfg.HandlerTimeout)
	defer cancel()

	out, delay, err := queue.Execute(hctx, q.policy, h, j)
	switch out {
	case queue.Ack:
		if err := d.Ack(); err != nil {
			q.logger.Warn("Failed to ack job", zap.String("job_id", j.ID), zap.Error(err))
		}
	case queue.Retry:
		q.logger.Warn("Job failed, scheduling redelivery",
			zap.String("job_id", j.ID),
			zap.Int("attempt", j.Attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := d.NakWithDelay(delay); err != nil {
			q.logger.Warn("Failed to nak job", zap.String("job_id", j.ID), zap.Error(err))
		}
	case queue.Fail:
		q.fail(ctx, d, j, err)
	}
}

func (q *Queue) fail(ctx context.Context, d delivery, j job.Job, cause error) {
	q.sink.Failed(ctx, j, cause)
	if err := d.Term(); err != nil {
		q.logger.Warn("Failed to terminate job", zap.String("job_id", j.ID), zap.Error(err))
	}
}

// deadLetter publishes failed jobs for inspection and manual replay.
type deadLetter struct {
	q *Queue
}

type deadLetterMessage struct {
	Job   job.Job `json:"job"`
	Error string  `json:"error"`
}

func (d deadLetter) Failed(ctx context.Context, j job.Job, cause error) {
	msg := deadLetterMessage{Job: j}
	if cause != nil {
		msg.Error = cause.Error()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		d.q.logger.Error("Failed to encode dead letter", zap.String("job_id", j.ID), zap.Error(err))
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := d.q.js.Publish(d.q.cfg.DeadLetterSubject, data, nats.Context(pctx)); err != nil {
		d.q.logger.Error("Failed to publish dead letter", zap.String("job_id", j.ID), zap.Error(err))
	}
}

// Ping reports whether the connection is up.
func (q *Queue) Ping() error {
	if !q.nc.IsConnected() {
		return fmt.Errorf("nats: %s", q.nc.Status())
	}
	return nil
}

// Close drains the connection.
func (q *Queue) Close() error {
	return q.nc.Drain()
}
