package interaction

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"skirmish/server/internal/command"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
	logginginteraction "skirmish/server/logging/interaction"
)

// ErrAlreadyRunning is returned when a second consumer is started.
var ErrAlreadyRunning = errors.New("interaction: pipeline already running")

const (
	metricKeyAdmitted  = "interaction_admitted_total"
	metricKeyRejected  = "interaction_rejected_total"
	metricKeyExecuted  = "interaction_executed_total"
	metricKeyFailed    = "interaction_failed_total"
	metricKeyDiscarded = "interaction_discarded_total"
)

// Failure details reported by handlers.
const (
	FailUnknownPlayer = "unknown_player"
	FailUnsupported   = "unsupported_interaction"
	FailRefused       = "refused"
)

// Items is the item and chest registry the handlers mutate.
type Items interface {
	PickerPickupItem(actor command.EntityID, itemID uint32) bool
	PickerPickUpChest(actor command.EntityID, chestID uint32) bool
	DropItems(actor command.EntityID, at Position, items []DroppedItem) int
}

// Players is the player and connection registry the handlers consult.
type Players interface {
	GetPlayerNetId(connectionID int) (command.EntityID, bool)
	InteractPlayers(actor, target command.EntityID, interaction PlayerInteraction) bool
	ApplyHazard(target command.EntityID, hazardID uint32, intensity float64) bool
	ChangeUnion(killer, victim command.EntityID) bool
}

// Result is the outcome of executing one request.
type Result struct {
	OK     bool
	Detail string
}

// Hooks observe pipeline transitions. They run on the calling goroutine.
type Hooks struct {
	OnRejected  func(reason string, req Request)
	OnExecuted  func(req Request, result Result)
	OnDiscarded func(count int)
}

// Config tunes admission and wires the world collaborators.
type Config struct {
	Capacity           int
	PerConnectionLimit int
	WarningStep        int
	TimestampTolerance time.Duration
	Clock              logging.Clock
	CurrentTick        func() int64
	Items              Items
	Players            Players
	Publisher          logging.Publisher
	Logger             telemetry.Logger
	Metrics            telemetry.Metrics
	Hooks              Hooks
}

// Stats is a point-in-time view of pipeline counters.
type Stats struct {
	Admitted  uint64            `json:"admitted"`
	Executed  uint64            `json:"executed"`
	Failed    uint64            `json:"failed"`
	Discarded uint64            `json:"discarded"`
	Rejected  map[string]uint64 `json:"rejected"`
	Pending   int               `json:"pending"`
	Capacity  int               `json:"capacity"`
}

// Pipeline validates requests from any goroutine, queues the valid ones and
// executes them one at a time on the goroutine running Run.
type Pipeline struct {
	cfg   Config
	queue *queue

	queueMu       sync.Mutex
	stopped       bool
	perConnection map[int]int
	limitDrops    map[int]uint64

	running   atomic.Bool
	admitted  atomic.Uint64
	executed  atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64

	rejectMu sync.Mutex
	rejected map[string]uint64
}

// NewPipeline constructs an idle pipeline. Call Run to start consuming.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = logging.ClockFunc(time.Now)
	}
	if cfg.TimestampTolerance <= 0 {
		cfg.TimestampTolerance = DefaultTimestampTolerance
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	return &Pipeline{
		cfg:           cfg,
		queue:         newQueue(cfg.Capacity, cfg.Metrics),
		perConnection: make(map[int]int),
		limitDrops:    make(map[int]uint64),
		rejected:      make(map[string]uint64),
	}
}

// EnqueueCommand decodes a client request and admits it.
func (p *Pipeline) EnqueueCommand(data []byte) (bool, string) {
	req, err := Decode(data)
	if err != nil {
		p.Reject(RejectMalformed, Request{})
		return false, RejectMalformed
	}
	req.Header.Authority = AuthorityClient
	return p.Enqueue(req)
}

// EnqueueFrom decodes a request read from connectionID. The origin is
// taken from the connection, never from the encoded header.
func (p *Pipeline) EnqueueFrom(connectionID int, data []byte) (bool, string) {
	req, err := Decode(data)
	if err != nil {
		p.Reject(RejectMalformed, Request{Header: Header{OriginConnectionID: connectionID}})
		return false, RejectMalformed
	}
	req.Header.OriginConnectionID = connectionID
	req.Header.Authority = AuthorityClient
	return p.Enqueue(req)
}

// EnqueueServerCommand admits a request raised by the server itself. A
// missing command id or timestamp is filled in.
func (p *Pipeline) EnqueueServerCommand(req Request) (bool, string) {
	req.Header.Authority = AuthorityServer
	if req.Header.CommandID == uuid.Nil {
		req.Header.CommandID = uuid.New()
	}
	if req.Header.TimestampMs == 0 {
		req.Header.TimestampMs = p.cfg.Clock.Now().UnixMilli()
	}
	return p.Enqueue(req)
}

// Enqueue validates req and stages it for the consumer. Invalid requests
// are logged and dropped; nothing about them is queued.
func (p *Pipeline) Enqueue(req Request) (bool, string) {
	now := p.cfg.Clock.Now()
	if ok, reason := Validate(req, now, p.cfg.TimestampTolerance); !ok {
		p.Reject(reason, req)
		return false, reason
	}

	reason := ""
	var limitDrops uint64
	p.queueMu.Lock()
	switch {
	case p.stopped:
		reason = RejectStopped
	case p.cfg.PerConnectionLimit > 0 && req.Header.Authority == AuthorityClient &&
		p.perConnection[req.Header.OriginConnectionID] >= p.cfg.PerConnectionLimit:
		reason = RejectConnectionLimit
		p.limitDrops[req.Header.OriginConnectionID]++
		limitDrops = p.limitDrops[req.Header.OriginConnectionID]
	case !p.queue.push(queued{req: req, admitted: now.UnixNano()}):
		reason = RejectQueueFull
	default:
		p.perConnection[req.Header.OriginConnectionID]++
	}
	p.queueMu.Unlock()

	if reason != "" {
		p.Reject(reason, req)
		if limitDrops > 0 && limitDrops&(limitDrops-1) == 0 && p.cfg.Logger != nil {
			p.cfg.Logger.Printf("[backpressure] dropping interaction connection=%d kind=%s count=%d limit=%d",
				req.Header.OriginConnectionID, req.Kind(), limitDrops, p.cfg.PerConnectionLimit)
		}
		return false, reason
	}

	p.admitted.Add(1)
	p.addMetric(metricKeyAdmitted, 1)
	logginginteraction.Admitted(context.Background(), p.cfg.Publisher, p.tick(), p.actor(req), req.Header.CommandID.String(), requestPayload(req, ""), nil)
	if step := p.cfg.WarningStep; step > 0 && p.cfg.Logger != nil {
		if n := p.queue.size(); n >= step && n%step == 0 {
			p.cfg.Logger.Printf("[backpressure] interaction backlog=%d capacity=%d", n, p.queue.capacity())
		}
	}
	return true, ""
}

// Reject records a request dropped before it reached the queue. Transport
// layers use it for drops they decide themselves, such as rate limiting.
func (p *Pipeline) Reject(reason string, req Request) {
	p.rejectMu.Lock()
	p.rejected[reason]++
	p.rejectMu.Unlock()
	p.addMetric(metricKeyRejected+"_"+reason, 1)

	commandID := ""
	if req.Header.CommandID != uuid.Nil {
		commandID = req.Header.CommandID.String()
	}
	logginginteraction.Rejected(context.Background(), p.cfg.Publisher, p.tick(), p.actor(req), commandID, requestPayload(req, reason), nil)
	if p.cfg.Hooks.OnRejected != nil {
		p.cfg.Hooks.OnRejected(reason, req)
	}
}

// Run executes queued requests until ctx is cancelled, waiting on the
// queue signal while it is empty. On cancellation the unexecuted backlog
// is discarded and later admissions are refused.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	p.queueMu.Lock()
	p.stopped = false
	p.queueMu.Unlock()

	for {
		batch := p.drain()
		for i, item := range batch {
			if ctx.Err() != nil {
				p.shutdown(len(batch) - i)
				return nil
			}
			p.execute(item)
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			p.shutdown(0)
			return nil
		case <-p.queue.readyC():
		}
	}
}

// Pending reports the number of queued requests.
func (p *Pipeline) Pending() int {
	return p.queue.size()
}

// Stats snapshots the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.rejectMu.Lock()
	rejected := make(map[string]uint64, len(p.rejected))
	for k, v := range p.rejected {
		rejected[k] = v
	}
	p.rejectMu.Unlock()
	return Stats{
		Admitted:  p.admitted.Load(),
		Executed:  p.executed.Load(),
		Failed:    p.failed.Load(),
		Discarded: p.discarded.Load(),
		Rejected:  rejected,
		Pending:   p.queue.size(),
		Capacity:  p.queue.capacity(),
	}
}

func (p *Pipeline) drain() []queued {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	items := p.queue.drain()
	if len(p.perConnection) > 0 {
		clear(p.perConnection)
	}
	return items
}

func (p *Pipeline) shutdown(unexecuted int) {
	p.queueMu.Lock()
	p.stopped = true
	backlog := p.queue.drain()
	clear(p.perConnection)
	p.queueMu.Unlock()

	discarded := unexecuted + len(backlog)
	if discarded == 0 {
		return
	}
	p.discarded.Add(uint64(discarded))
	p.addMetric(metricKeyDiscarded, uint64(discarded))
	logginginteraction.BacklogDiscarded(context.Background(), p.cfg.Publisher, p.tick(), logginginteraction.BacklogDiscardedPayload{Discarded: discarded}, nil)
	if p.cfg.Hooks.OnDiscarded != nil {
		p.cfg.Hooks.OnDiscarded(discarded)
	}
}

func (p *Pipeline) execute(item queued) {
	req := item.req
	result := p.dispatch(req)
	p.executed.Add(1)
	p.addMetric(metricKeyExecuted, 1)
	if !result.OK {
		p.failed.Add(1)
		p.addMetric(metricKeyFailed, 1)
	}
	latency := time.Duration(p.cfg.Clock.Now().UnixNano() - item.admitted)
	logginginteraction.Executed(context.Background(), p.cfg.Publisher, p.tick(), p.actor(req), req.Header.CommandID.String(), logginginteraction.ExecutedPayload{
		Kind:    req.Kind(),
		OK:      result.OK,
		Detail:  result.Detail,
		Latency: latency.Microseconds(),
	}, nil)
	if p.cfg.Hooks.OnExecuted != nil {
		p.cfg.Hooks.OnExecuted(req, result)
	}
}

func (p *Pipeline) dispatch(req Request) Result {
	if union, ok := req.Payload.(UnionChangePayload); ok {
		if p.cfg.Players == nil {
			return Result{Detail: FailUnsupported}
		}
		return outcome(p.cfg.Players.ChangeUnion(union.KillerID, union.VictimID))
	}
	if p.cfg.Players == nil {
		return Result{Detail: FailUnknownPlayer}
	}
	actor, found := p.cfg.Players.GetPlayerNetId(req.Header.OriginConnectionID)
	if !found {
		return Result{Detail: FailUnknownPlayer}
	}

	switch payload := req.Payload.(type) {
	case SceneObjectPayload:
		if p.cfg.Items == nil {
			return Result{Detail: FailUnsupported}
		}
		switch payload.Interaction {
		case SceneInteractionPickup:
			return outcome(p.cfg.Items.PickerPickupItem(actor, payload.ObjectID))
		case SceneInteractionOpenChest:
			return outcome(p.cfg.Items.PickerPickUpChest(actor, payload.ObjectID))
		}
	case PlayerPayload:
		return outcome(p.cfg.Players.InteractPlayers(actor, payload.TargetPlayerID, payload.Interaction))
	case HazardPayload:
		return outcome(p.cfg.Players.ApplyHazard(actor, payload.HazardID, payload.Intensity))
	case DropPayload:
		if p.cfg.Items == nil {
			return Result{Detail: FailUnsupported}
		}
		return outcome(p.cfg.Items.DropItems(actor, req.Header.Position, payload.Items) > 0)
	}
	return Result{Detail: FailUnsupported}
}

func outcome(ok bool) Result {
	if ok {
		return Result{OK: true}
	}
	return Result{Detail: FailRefused}
}

func (p *Pipeline) addMetric(key string, delta uint64) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.Add(key, delta)
	}
}

func (p *Pipeline) tick() uint64 {
	if p.cfg.CurrentTick == nil {
		return 0
	}
	if t := p.cfg.CurrentTick(); t > 0 {
		return uint64(t)
	}
	return 0
}

func (p *Pipeline) actor(req Request) logging.EntityRef {
	if req.Header.Authority == AuthorityServer {
		return logging.EntityRef{ID: "server", Kind: logging.EntityKindWorld}
	}
	return logging.EntityRef{ID: strconv.Itoa(req.Header.OriginConnectionID), Kind: logging.EntityKindConnection}
}

func requestPayload(req Request, reason string) logginginteraction.RequestPayload {
	return logginginteraction.RequestPayload{
		Kind:         req.Kind(),
		Category:     req.Header.Category.String(),
		ConnectionID: req.Header.OriginConnectionID,
		Reason:       reason,
	}
}
