package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/services"
	"github.com/desertthunder/noncmra/internal/shared"
)

const maxWorkers = 32

// DispatchOpts contains configuration for a verification run.
type DispatchOpts struct {
	Workers              int           // Concurrent workers (default: 10, max: 32)
	RateLimit            float64       // Provider requests per second shared by all workers (default: 10)
	MaxAttempts          int           // Calls per address when the provider errors (default: 3)
	MaxCredentialRetries int           // Quota retries per address; 0 allows one per alternate credential
	BackoffInitial       time.Duration // First retry delay after a protocol or network error (default: 1s)
	BackoffMax           time.Duration // Retry delay ceiling (default: 5s)
	ExhaustedWait        time.Duration // Delay before retrying checkout while units are reserved (default: 250ms)
	ErrorBudget          int           // Protocol and network failures tolerated before dispatch stops; 0 disables
}

// DispatchOptsFromConfig maps the [dispatch] configuration section onto DispatchOpts.
func DispatchOptsFromConfig(c shared.DispatchConfig) DispatchOpts {
	return DispatchOpts{
		Workers:              c.Workers,
		RateLimit:            c.RateLimit,
		MaxAttempts:          c.MaxAttempts,
		MaxCredentialRetries: c.MaxCredentialRetries,
		BackoffInitial:       c.BackoffInitial,
		BackoffMax:           c.BackoffMax,
		ExhaustedWait:        c.ExhaustedWait,
		ErrorBudget:          c.ErrorBudget,
	}
}

func (o *DispatchOpts) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.Workers > maxWorkers {
		o.Workers = maxWorkers
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 10.0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.MaxCredentialRetries < 0 {
		o.MaxCredentialRetries = 0
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax < o.BackoffInitial {
		o.BackoffMax = max(5*time.Second, o.BackoffInitial)
	}
	if o.ExhaustedWait <= 0 {
		o.ExhaustedWait = 250 * time.Millisecond
	}
	if o.ErrorBudget < 0 {
		o.ErrorBudget = 0
	}
}

func (o DispatchOpts) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.BackoffInitial
	b.MaxInterval = o.BackoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// addressStatus is the per-address state machine driven by the coordinator:
// pending -> inFlight -> (retrying -> pending -> inFlight)* -> terminal.
type addressStatus int

const (
	statusPending addressStatus = iota
	statusInFlight
	statusRetrying
	statusTerminal
)

type addressState struct {
	mailbox      models.Mailbox
	status       addressStatus
	calls        int
	failures     int
	quotaRetries int
	tried        []string
	backoff      *backoff.ExponentialBackOff
	outcome      models.Outcome
}

type verifyJob struct {
	id      int
	address models.Address
	exclude []string
}

type verifyResult struct {
	id           int
	credential   string
	verification *models.Verification
	err          error
	exhausted    bool
	cancelled    bool
}

// Run verifies mailboxes with bounded concurrency and returns exactly one outcome per unique address.
//
// Mailboxes sharing an address key are collapsed onto the first one. A single coordinator goroutine
// owns all per-address state; workers only check out credentials and call the validator.
// Dispatch stops early when every credential is exhausted, the error budget is spent, or ctx is
// cancelled. In-flight calls still complete and addresses that never reached a verdict are reported
// as skipped. Early stops are not errors.
func (e *VerifyEngine) Run(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	mailboxes []models.Mailbox,
	opts DispatchOpts,
) (*RunResult, error) {
	if e.validator == nil {
		return nil, fmt.Errorf("%w: validator not initialized", shared.ErrServiceUnavail)
	}
	if e.pool == nil {
		return nil, fmt.Errorf("%w: credential pool not initialized", shared.ErrServiceUnavail)
	}
	opts.withDefaults()

	unique, duplicates := dedupe(mailboxes)
	result := &RunResult{
		CatalogTotal: len(mailboxes),
		Duplicates:   duplicates,
		StartedAt:    time.Now(),
	}

	states := make([]*addressState, len(unique))
	for i, m := range unique {
		states[i] = &addressState{mailbox: m, backoff: opts.newBackOff()}
	}

	e.logger.Info("starting verification run",
		"provider", e.validator.Name(),
		"addresses", len(unique),
		"duplicates", duplicates,
		"workers", opts.Workers,
		"credentials", e.pool.Len(),
		"available", e.pool.Available(),
	)
	e.sendProgress(progress, prepareUpdate(len(unique), duplicates))

	d := &dispatcher{
		engine:   e,
		opts:     opts,
		states:   states,
		progress: progress,
		result:   result,
	}
	d.run(ctx)

	result.Outcomes = make([]models.Outcome, len(states))
	for i, s := range states {
		if s.status != statusTerminal {
			s.outcome = models.Outcome{
				Mailbox:  s.mailbox,
				Kind:     models.OutcomeSkipped,
				Reason:   d.stopReason,
				Attempts: s.calls,
			}
			result.Unprocessed++
			e.metrics.IncrementOutcome(s.outcome)
		}
		result.Outcomes[i] = s.outcome
	}

	result.Partial = result.Unprocessed > 0
	result.StopReason = d.stopReason
	result.Credentials = e.pool.Snapshot()
	result.ExhaustedCredentials = e.pool.ExhaustedCount()
	result.CompletedAt = time.Now()

	e.metrics.SetCredentials(result.Credentials, shared.MaskSecret)
	e.metrics.SetUnprocessed(result.Unprocessed)

	e.logger.Info("verification run finished",
		"verified", result.Count(models.OutcomeVerified),
		"rejected", result.Count(models.OutcomeRejected),
		"failed", result.Count(models.OutcomeFailed),
		"unprocessed", result.Unprocessed,
		"exhausted_credentials", result.ExhaustedCredentials,
		"calls", result.Calls,
		"duration", result.Duration().Round(time.Millisecond),
	)
	if result.Partial {
		e.logger.Warn("run stopped early", "reason", result.StopReason, "unprocessed", result.Unprocessed)
	}

	e.sendProgress(progress, completeUpdate(result))
	return result, nil
}

// dedupe keeps the first mailbox of every address key in catalog order.
func dedupe(mailboxes []models.Mailbox) ([]models.Mailbox, int) {
	seen := make(map[string]bool, len(mailboxes))
	unique := make([]models.Mailbox, 0, len(mailboxes))
	for _, m := range mailboxes {
		key := m.Address.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, m)
	}
	return unique, len(mailboxes) - len(unique)
}

// dispatcher holds coordinator state for one run. Only the coordinator goroutine touches it.
type dispatcher struct {
	engine   *VerifyEngine
	opts     DispatchOpts
	states   []*addressState
	progress chan<- ProgressUpdate
	result   *RunResult

	queue      []int
	inFlight   int
	delayed    int
	terminal   int
	stopping   bool
	stopReason string
	timers     []*time.Timer
	requeue    chan int
	quit       chan struct{}
}

func (d *dispatcher) run(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Limit(d.opts.RateLimit), 1)

	jobs := make(chan verifyJob)
	results := make(chan verifyResult, d.opts.Workers)
	d.requeue = make(chan int)
	d.quit = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go d.engine.verifyWorker(ctx, &wg, jobs, results, limiter)
	}

	d.queue = make([]int, len(d.states))
	for i := range d.states {
		d.queue[i] = i
	}

	ctxDone := ctx.Done()
	for {
		if d.stopping && d.inFlight == 0 {
			break
		}
		if len(d.queue) == 0 && d.inFlight == 0 && d.delayed == 0 {
			break
		}

		var send chan<- verifyJob
		var next verifyJob
		if !d.stopping && len(d.queue) > 0 {
			send = jobs
			next = d.job(d.queue[0])
		}

		select {
		case send <- next:
			d.queue = d.queue[1:]
			d.states[next.id].status = statusInFlight
			d.inFlight++
		case res := <-results:
			d.inFlight--
			d.handle(res)
		case id := <-d.requeue:
			d.delayed--
			d.states[id].status = statusPending
			d.queue = append(d.queue, id)
		case <-ctxDone:
			ctxDone = nil
			d.stop(StopCancelled)
		}
	}

	close(jobs)
	close(d.quit)
	for _, t := range d.timers {
		t.Stop()
	}
	wg.Wait()
}

func (d *dispatcher) job(id int) verifyJob {
	s := d.states[id]
	return verifyJob{
		id:      id,
		address: s.mailbox.Address,
		exclude: slices.Clone(s.tried),
	}
}

func (d *dispatcher) handle(res verifyResult) {
	s := d.states[res.id]

	if res.cancelled {
		s.status = statusPending
		d.stop(StopCancelled)
		return
	}
	if res.exhausted {
		d.handleExhausted(res.id)
		return
	}

	s.calls++
	d.result.Calls++

	if res.err == nil {
		d.finish(res.id, models.Outcome{Kind: models.OutcomeVerified, Verification: res.verification})
		return
	}

	switch kind := services.KindOf(res.err); kind {
	case services.KindRejected:
		d.finish(res.id, models.Outcome{Kind: models.OutcomeRejected, Reason: errorReason(res.err)})

	case services.KindQuotaExceeded:
		s.tried = append(s.tried, res.credential)
		s.quotaRetries++
		if s.quotaRetries > d.quotaRetryBound() {
			d.finish(res.id, models.Outcome{
				Kind:   models.OutcomeFailed,
				Cause:  models.CauseQuotaExceeded,
				Reason: errorReason(res.err),
			})
			return
		}
		s.status = statusPending
		d.queue = append(d.queue, res.id)
		d.engine.metrics.IncrementRetry("quota")
		d.engine.sendProgress(d.progress, retryUpdate(d.terminal, len(d.states), s.mailbox.Name, res.err))

	default:
		cause := models.CauseNetworkError
		if kind == services.KindProtocol {
			cause = models.CauseProtocolError
		}
		s.failures++
		d.result.TransientErrors++
		if d.opts.ErrorBudget > 0 && d.result.TransientErrors > d.opts.ErrorBudget {
			d.stop(StopErrorBudget)
		}

		if s.failures >= d.opts.MaxAttempts {
			d.engine.logger.Warn("address failed after retries", "name", s.mailbox.Name, "attempts", s.calls, "err", res.err)
			d.finish(res.id, models.Outcome{Kind: models.OutcomeFailed, Cause: cause, Reason: errorReason(res.err)})
			return
		}
		if d.stopping {
			s.status = statusPending
			return
		}

		wait := s.backoff.NextBackOff()
		d.engine.logger.Debug("retrying address", "name", s.mailbox.Name, "attempt", s.calls, "wait", wait, "err", res.err)
		d.after(wait, res.id)
		d.engine.metrics.IncrementRetry("backoff")
		d.engine.sendProgress(d.progress, retryUpdate(d.terminal, len(d.states), s.mailbox.Name, res.err))
	}
}

// handleExhausted decides what a failed checkout means for the address.
//
// Quota that came back on an untried credential since the checkout sends the address straight back
// to the queue. Outstanding reservations may still be released, so the address waits. With nothing
// reserved and nothing available the whole pool is spent and dispatch stops. Otherwise only
// credentials this address already tried have quota left.
func (d *dispatcher) handleExhausted(id int) {
	s := d.states[id]
	h := d.engine.pool.Headroom(s.tried...)
	switch {
	case h.Untried > 0:
		s.status = statusPending
		d.queue = append(d.queue, id)
	case h.Reserved > 0:
		d.after(d.opts.ExhaustedWait, id)
		d.engine.metrics.IncrementRetry("exhausted_wait")
	case h.Available == 0:
		s.status = statusPending
		d.stop(StopCredentialsExhausted)
	default:
		d.finish(id, models.Outcome{
			Kind:   models.OutcomeFailed,
			Cause:  models.CauseQuotaExceeded,
			Reason: "no untried credential has remaining quota",
		})
	}
}

func (d *dispatcher) quotaRetryBound() int {
	if d.opts.MaxCredentialRetries > 0 {
		return d.opts.MaxCredentialRetries
	}
	return max(d.engine.pool.Len()-1, 0)
}

// after requeues id once wait has elapsed, unless the run ends first.
func (d *dispatcher) after(wait time.Duration, id int) {
	d.delayed++
	d.states[id].status = statusRetrying

	requeue, quit := d.requeue, d.quit
	d.timers = append(d.timers, time.AfterFunc(wait, func() {
		select {
		case requeue <- id:
		case <-quit:
		}
	}))
}

func (d *dispatcher) finish(id int, o models.Outcome) {
	s := d.states[id]
	o.Mailbox = s.mailbox
	o.Attempts = s.calls
	s.outcome = o
	s.status = statusTerminal
	d.terminal++

	d.engine.metrics.IncrementOutcome(o)
	d.engine.sendProgress(d.progress, outcomeUpdate(d.terminal, len(d.states), o))
}

func (d *dispatcher) stop(reason string) {
	if d.stopping {
		return
	}
	d.stopping = true
	d.stopReason = reason
	d.engine.logger.Warn("stopping dispatch", "reason", reason, "in_flight", d.inFlight)
	d.engine.sendProgress(d.progress, stoppingUpdate(d.terminal, len(d.states), reason))
}

// verifyWorker is a worker goroutine that verifies addresses from the jobs channel.
func (e *VerifyEngine) verifyWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan verifyJob,
	results chan<- verifyResult,
	limiter *rate.Limiter,
) {
	defer wg.Done()

	for job := range jobs {
		results <- e.verifySingle(ctx, job, limiter)
	}
}

// verifySingle performs one checkout and at most one provider call.
//
// Cancellation only prevents new calls from starting; a call already past the limiter runs to
// completion under the validator's own timeout.
func (e *VerifyEngine) verifySingle(ctx context.Context, job verifyJob, limiter *rate.Limiter) verifyResult {
	res := verifyResult{id: job.id}

	cred, err := e.pool.Checkout(job.exclude...)
	if err != nil {
		res.exhausted = true
		return res
	}
	res.credential = cred.ID

	if err := limiter.Wait(ctx); err != nil {
		e.pool.ReleaseWithoutUse(cred.ID)
		res.cancelled = true
		res.err = err
		return res
	}

	start := time.Now()
	res.verification, res.err = e.validator.Verify(context.WithoutCancel(ctx), job.address, cred)
	e.metrics.ObserveVerify(resultLabel(res.err), time.Since(start))
	e.settle(cred.ID, res.err)
	return res
}

// settle commits or releases the reserved unit and disables the credential when asked to.
func (e *VerifyEngine) settle(id string, err error) {
	if err == nil {
		e.pool.Commit(id)
		return
	}

	var ve *services.ValidationError
	if !errors.As(err, &ve) {
		e.pool.ReleaseWithoutUse(id)
		return
	}

	if ve.Charged {
		e.pool.Commit(id)
	} else {
		e.pool.ReleaseWithoutUse(id)
	}
	if ve.Disable {
		e.pool.Disable(id)
		e.logger.Warn("credential disabled", "credential", shared.MaskSecret(id), "status", ve.Status)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return models.OutcomeVerified.String()
	}
	return services.KindOf(err).String()
}

// errorReason drops the kind and status prefix of a [services.ValidationError].
func errorReason(err error) string {
	var ve *services.ValidationError
	if errors.As(err, &ve) && ve.Err != nil {
		return ve.Err.Error()
	}
	return err.Error()
}
