package lifecycle

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/easyctf/openctf-judge/go/metrics2"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/go/util"
	"github.com/easyctf/openctf-judge/judge/go/types"
)

const (
	// callbackTimeout bounds one delivery attempt.
	callbackTimeout = 2 * time.Second

	// callbackWorkers is the number of concurrent deliveries.
	callbackWorkers = 4

	// callbackQueueSize bounds the backlog of undelivered callbacks. The
	// contract is at-most-once, so when the queue is full we drop rather
	// than block the submit path.
	callbackQueueSize = 256
)

// CallbackPool delivers finished-job callbacks off the request path: a fixed
// set of workers draining a bounded queue. Deliveries POST the job's details
// as JSON with a short timeout; failures are logged and swallowed, never
// retried.
type CallbackPool struct {
	client *http.Client
	queue  chan *types.Job
	wg     sync.WaitGroup

	mtx     sync.Mutex
	stopped bool

	attempts metrics2.Counter
	failures metrics2.Counter
	dropped  metrics2.Counter
}

// NewCallbackPool starts the delivery workers.
func NewCallbackPool() *CallbackPool {
	p := &CallbackPool{
		client:   &http.Client{Timeout: callbackTimeout},
		queue:    make(chan *types.Job, callbackQueueSize),
		attempts: metrics2.GetCounter("judge_callbacks", map[string]string{"result": "attempted"}),
		failures: metrics2.GetCounter("judge_callbacks", map[string]string{"result": "failed"}),
		dropped:  metrics2.GetCounter("judge_callbacks", map[string]string{"result": "dropped"}),
	}
	p.wg.Add(callbackWorkers)
	for i := 0; i < callbackWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *CallbackPool) worker() {
	defer p.wg.Done()
	for job := range p.queue {
		p.deliver(job)
	}
}

// Enqueue schedules one delivery for job. Jobs without a callback URL are
// ignored. Never blocks.
func (p *CallbackPool) Enqueue(job *types.Job) {
	if job.CallbackURL == "" {
		return
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.stopped {
		p.dropped.Inc(1)
		sklog.Warningf("Callback pool stopped; dropping callback for job %d", job.ID)
		return
	}
	select {
	case p.queue <- job:
	default:
		p.dropped.Inc(1)
		sklog.Warningf("Callback queue full; dropping callback for job %d", job.ID)
	}
}

// deliver POSTs the job's details to its callback URL.
func (p *CallbackPool) deliver(job *types.Job) {
	p.attempts.Inc(1)
	b, err := json.Marshal(job.Details())
	if err != nil {
		p.failures.Inc(1)
		sklog.Warningf("Failed to encode callback for job %d: %s", job.ID, err)
		return
	}
	resp, err := p.client.Post(job.CallbackURL, "application/json", bytes.NewReader(b))
	if err != nil {
		p.failures.Inc(1)
		sklog.Warningf("Callback for job %d to %s failed: %s", job.ID, job.CallbackURL, err)
		return
	}
	defer util.Close(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		p.failures.Inc(1)
		sklog.Warningf("Callback for job %d to %s returned %d", job.ID, job.CallbackURL, resp.StatusCode)
	}
}

// Drain stops the workers after delivering everything already enqueued.
// Enqueues after Drain are dropped.
func (p *CallbackPool) Drain() {
	p.mtx.Lock()
	if p.stopped {
		p.mtx.Unlock()
		return
	}
	p.stopped = true
	p.mtx.Unlock()
	close(p.queue)
	p.wg.Wait()
}
