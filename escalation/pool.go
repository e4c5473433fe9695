package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"edrwatch/engine"
	"edrwatch/logger"
	"edrwatch/tracing"
)

const (
	DefaultWorkers   = 10
	DefaultQueueSize = 100
	DefaultTimeout   = 30 * time.Second
)

// Sink receives finished alerts. output.Writer satisfies it.
type Sink interface {
	WriteRecord(recordType string, payload interface{})
}

type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Enrich    EnrichOptions
}

type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
	Malicious int64 `json:"malicious"`
	Pending   int64 `json:"pending"`
}

// Pool runs reputation checks off the dispatch loop. Escalate never blocks:
// requests beyond the queue capacity are dropped and counted.
type Pool struct {
	checker Checker
	cache   *VerdictCache
	sink    Sink
	opts    Options

	mu     sync.RWMutex
	closed bool
	queue  chan engine.Escalation
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	submitted, completed, dropped, failed, malicious atomic.Int64
}

func NewPool(checker Checker, cache *VerdictCache, sink Sink, opts Options) *Pool {
	if checker == nil {
		checker = NopChecker{}
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		checker: checker,
		cache:   cache,
		sink:    sink,
		opts:    opts,
		queue:   make(chan engine.Escalation, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Escalate queues e for checking and reports whether it was accepted.
func (p *Pool) Escalate(e engine.Escalation) bool {
	return p.Submit(e) == nil
}

func (p *Pool) Submit(e engine.Escalation) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return fmt.Errorf("%w: pool closed", ErrQueueFull)
	}
	select {
	case p.queue <- e:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		logger.Warnf("Escalation queue full, dropping check for %s", e.Path)
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued checks to finish or for
// ctx to end, whichever comes first. Checks still running when ctx ends are
// cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	submitted := p.submitted.Load()
	completed := p.completed.Load()
	return Stats{
		Submitted: submitted,
		Completed: completed,
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
		Malicious: p.malicious.Load(),
		Pending:   submitted - completed,
	}
}

// Completed returns the number of finished checks.
func (p *Pool) Completed() int64 {
	return p.completed.Load()
}

// Pending returns the number of accepted checks not yet finished.
func (p *Pool) Pending() int64 {
	return p.submitted.Load() - p.completed.Load()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for e := range p.queue {
		p.process(e)
	}
}

func (p *Pool) process(e engine.Escalation) {
	defer p.completed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			logger.Errorf("Escalation for %s panicked: %v", e.Path, r)
		}
	}()

	ctx, cancel := context.WithTimeout(p.ctx, p.opts.Timeout)
	defer cancel()
	ctx, endTask := tracing.StartTask(ctx, "escalation")
	defer endTask()

	alert := Enrich(e, p.opts.Enrich)
	alert.Checker = p.checker.Name()

	if verdict, ok := p.cache.Get(alert.LookupHash); ok {
		alert.Verdict = verdict
		alert.Cached = true
	} else {
		verdict, err := p.checker.Check(ctx, alert.LookupHash)
		if err != nil {
			p.failed.Add(1)
			alert.Error = err.Error()
			if errors.Is(err, ErrRateLimited) {
				logger.Warnf("Reputation check for %s skipped: %v", e.Path, err)
			} else {
				logger.Warnf("Reputation check for %s failed: %v", e.Path, err)
			}
			verdict = VerdictUnknown
		} else {
			p.cache.Put(alert.LookupHash, verdict)
		}
		alert.Verdict = verdict
	}
	alert.CheckedAt = time.Now().UTC()

	switch alert.Verdict {
	case VerdictMalicious:
		p.malicious.Add(1)
		logger.Errorf("Malware detected: %s (hash %s, score %d)", e.Path, alert.LookupHash, e.Score)
	case VerdictClean:
		logger.Infof("Reputation check clean: %s", e.Path)
	default:
		logger.Infof("Reputation unknown for %s", e.Path)
	}

	if p.sink != nil {
		p.sink.WriteRecord("alert", alert)
	}
}
