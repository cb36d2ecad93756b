package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"meshmap/internal/domain"
	"meshmap/internal/mesh"
	"meshmap/internal/metrics"
	"meshmap/internal/printer"
	"meshmap/internal/protocol"
	"meshmap/internal/scheduler"
	"meshmap/internal/transport"
)

// ErrNoRootAddress is returned when the sink's own address is unavailable
var ErrNoRootAddress = errors.New("no root address")

// MapperConfig holds the mapper's tunables
type MapperConfig struct {
	RegistryCapacity int
	MaxPrintDepth    int
	ScopePrefix      uint16
	FastInterval     time.Duration
	SlowInterval     time.Duration
}

// DefaultMapperConfig returns the values the sink uses out of the box
func DefaultMapperConfig() MapperConfig {
	return MapperConfig{
		RegistryCapacity: 64,
		MaxPrintDepth:    printer.DefaultMaxDepth,
		ScopePrefix:      domain.DefaultScopePrefix,
		FastInterval:     time.Second,
		SlowInterval:     10 * time.Second,
	}
}

// StateLoader re-reads the routing layer's tables
type StateLoader func() (mesh.Source, error)

// MapperOption configures optional collaborators
type MapperOption func(*Mapper)

// WithEventBus publishes mapper events on bus
func WithEventBus(bus *EventBus) MapperOption {
	return func(m *Mapper) { m.bus = bus }
}

// WithMetrics records counters in met
func WithMetrics(met *metrics.Metrics) MapperOption {
	return func(m *Mapper) { m.metrics = met }
}

// WithConsole renders the tree to w after every new edge
func WithConsole(w io.Writer) MapperOption {
	return func(m *Mapper) { m.console = w }
}

// WithStateLoader enables Reload
func WithStateLoader(load StateLoader) MapperOption {
	return func(m *Mapper) { m.loader = load }
}

// View is what the mapper exposes to other goroutines
type View struct {
	Topology domain.Snapshot  `json:"topology"`
	Tree     printer.Tree     `json:"tree"`
	Cursor   scheduler.Cursor `json:"cursor"`
}

// Mapper owns the topology. Every handler runs to completion on the goroutine
// that calls Run, so registry, graph and cursor need no locking. Other
// goroutines use Snapshot and Reload.
type Mapper struct {
	cfg      MapperConfig
	registry *domain.Registry
	sched    *scheduler.Scheduler
	mesh     mesh.Source
	loader   StateLoader
	sender   transport.Sender
	bus      *EventBus
	metrics  *metrics.Metrics
	console  io.Writer

	sweepID     string
	sweepProbes int

	reloads   chan struct{}
	snapshots chan chan View
}

// NewMapper seeds the registry with the sink's own address at index 0
func NewMapper(cfg MapperConfig, src mesh.Source, identity mesh.Identity, sender transport.Sender, opts ...MapperOption) (*Mapper, error) {
	m := &Mapper{
		cfg:       cfg,
		registry:  domain.NewRegistry(cfg.RegistryCapacity),
		sched:     scheduler.New(),
		mesh:      src,
		sender:    sender,
		reloads:   make(chan struct{}, 1),
		snapshots: make(chan chan View),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = NewEventBus()
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	if m.console == nil {
		m.console = io.Discard
	}

	root, err := identity.GlobalAddress()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRootAddress, err)
	}
	if _, err := m.register(root); err != nil {
		return nil, fmt.Errorf("seed root: %w", err)
	}
	log.Printf("[mapper] root node %s, capacity %d nodes, %d children per node",
		root, m.registry.Cap(), m.registry.ChildrenCap())
	return m, nil
}

// Run is the reactor loop. It returns when ctx ends.
func (m *Mapper) Run(ctx context.Context, datagrams <-chan transport.Datagram) error {
	fast := time.NewTicker(m.cfg.FastInterval)
	defer fast.Stop()
	slow := time.NewTimer(m.cfg.SlowInterval)
	defer slow.Stop()

	log.Printf("[mapper] running: fast tick %s, slow tick %s", m.cfg.FastInterval, m.cfg.SlowInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[mapper] stopping")
			return ctx.Err()

		case d, ok := <-datagrams:
			if !ok {
				// transport closed; timers keep the sweep going
				datagrams = nil
				continue
			}
			m.HandleDatagram(d)

		case <-fast.C:
			m.OnFastTick()

		case <-slow.C:
			m.OnSlowTick()
			slow.Reset(m.cfg.SlowInterval)

		case <-m.reloads:
			m.reload()

		case reply := <-m.snapshots:
			reply <- m.view()
		}
	}
}

// HandleDatagram applies one report. It reports whether a new edge was
// recorded; err is set for malformed datagrams and rejected attaches.
// Reports from or naming unregistered nodes are dropped without error.
func (m *Mapper) HandleDatagram(d transport.Datagram) (attached bool, err error) {
	m.metrics.ReportsReceived.Inc()

	rep, err := protocol.DecodeReport(d.Payload)
	if err != nil {
		m.metrics.ReportsMalformed.Inc()
		log.Printf("[mapper] dropping datagram from %s: %v", d.From, err)
		m.publishDiscard("malformed", domain.Address{}, domain.Address{}, err)
		return false, err
	}
	rep = rep.Normalized(m.cfg.ScopePrefix)

	child, ok := m.registry.Find(rep.Source)
	if !ok {
		m.discard(metrics.ReasonUnregisteredSource, rep, nil)
		return false, nil
	}
	parent, ok := m.registry.Find(rep.Parent)
	if !ok {
		m.discard(metrics.ReasonUnregisteredParent, rep, nil)
		return false, nil
	}
	if !rep.MatchesContext(m.sched.Context()) {
		// a late answer to an earlier sweep still describes a real edge
		m.metrics.ContextMismatch.Inc()
	}

	added, err := m.registry.Attach(child, parent)
	switch {
	case errors.Is(err, domain.ErrChildCapacityExceeded):
		m.metrics.ChildCapacity.Inc()
		m.discard(metrics.ReasonChildCapacity, rep, err)
		return false, err
	case errors.Is(err, domain.ErrAlreadyParented):
		m.discard(metrics.ReasonAlreadyParented, rep, err)
		return false, err
	case errors.Is(err, domain.ErrSelfEdge):
		m.discard(metrics.ReasonSelfEdge, rep, err)
		return false, err
	case err != nil:
		log.Printf("[mapper] attach %s under %s: %v", rep.Source, rep.Parent, err)
		return false, err
	}
	if !added {
		return false, nil
	}

	m.metrics.EdgesAttached.Inc()
	m.metrics.TopologyEdges.Set(float64(m.registry.Edges()))
	log.Printf("[mapper] %s reports parent %s", rep.Source, rep.Parent)
	m.bus.Publish(Event{
		Type:    EventEdgeAttached,
		Payload: EdgePayload{Child: rep.Source.String(), Parent: rep.Parent.String()},
	})
	if _, err := printer.Render(m.console, m.registry, m.cfg.MaxPrintDepth); err != nil {
		log.Printf("[mapper] render: %v", err)
	}
	return true, nil
}

// OnFastTick keeps the gauges current. It never probes.
func (m *Mapper) OnFastTick() {
	m.metrics.RegistryNodes.Set(float64(m.registry.Len()))
	m.metrics.TopologyEdges.Set(float64(m.registry.Edges()))
}

// OnSlowTick advances the sweep, sending at most one probe
func (m *Mapper) OnSlowTick() scheduler.StepResult {
	res := m.sched.Step(m.mesh)
	ctx := m.sched.Context()
	// an empty routing table wraps on every tick without sending anything
	empty := res.Outcome == scheduler.OutcomeIdle && (res.NewContext || m.sweepProbes == 0)

	if res.NewContext {
		m.sweepID = uuid.NewString()
		m.sweepProbes = 0
		if !empty {
			log.Printf("[mapper] sweep %s: mapping instance %d dag %s", m.sweepID, ctx.InstanceID, ctx.DAGID)
		}
	}

	switch res.Outcome {
	case scheduler.OutcomeNoContext:
		log.Printf("[mapper] no routing instance in use, nothing to map")
	case scheduler.OutcomeProbe:
		m.probe(res)
	}

	if res.Wrapped && !empty {
		m.metrics.SweepsCompleted.Inc()
		log.Printf("[mapper] sweep %s complete: %d probes", m.sweepID, m.sweepProbes)
		m.bus.Publish(Event{
			Type: EventSweepCompleted,
			Payload: SweepPayload{
				Sweep:      m.sweepID,
				InstanceID: ctx.InstanceID,
				DAGID:      ctx.DAGID.String(),
				Probes:     m.sweepProbes,
			},
		})
	}
	return res
}

// probe registers the target so its report will be accepted, then sends
func (m *Mapper) probe(res scheduler.StepResult) {
	if _, err := m.register(res.Target); err != nil {
		m.metrics.RegistryFull.Inc()
		log.Printf("[mapper] not probing %s: %v", res.Target, err)
		return
	}

	if err := m.sender.SendTo(res.Target, res.Probe.Encode()); err != nil {
		m.metrics.SendErrors.Inc()
		log.Printf("[mapper] probe %s: %v", res.Target, err)
		return
	}
	m.metrics.ProbesSent.Inc()
	m.sweepProbes++
	m.bus.Publish(Event{
		Type: EventProbeSent,
		Payload: ProbePayload{
			Target:     res.Target.String(),
			InstanceID: res.Probe.InstanceID,
			DAGID:      res.Probe.DAGID.String(),
			Sweep:      m.sweepID,
		},
	})
}

// register stores the normalized form so reports, which are normalized on
// arrival, find it
func (m *Mapper) register(addr domain.Address) (domain.NodeID, error) {
	key := addr.Normalize(m.cfg.ScopePrefix)
	before := m.registry.Len()
	id, err := m.registry.Register(key)
	if err != nil {
		return id, err
	}
	if m.registry.Len() > before {
		log.Printf("[mapper] creating new node: %s", key)
		m.metrics.RegistryNodes.Set(float64(m.registry.Len()))
		m.bus.Publish(Event{
			Type:    EventNodeRegistered,
			Payload: NodePayload{Index: int(id), Address: key.String()},
		})
	}
	return id, nil
}

func (m *Mapper) discard(reason string, rep protocol.Report, err error) {
	m.metrics.ReportsDiscarded.WithLabelValues(reason).Inc()
	if err != nil {
		log.Printf("[mapper] discarding report from %s: %v", rep.Source, err)
	}
	m.publishDiscard(reason, rep.Source, rep.Parent, err)
}

func (m *Mapper) publishDiscard(reason string, source, parent domain.Address, err error) {
	p := DiscardPayload{Reason: reason}
	if !source.IsZero() {
		p.Source = source.String()
	}
	if !parent.IsZero() {
		p.Parent = parent.String()
	}
	if err != nil {
		p.Error = err.Error()
	}
	m.bus.Publish(Event{Type: EventReportDiscarded, Payload: p})
}

// Reload asks the loop to re-read the mesh state. Requests made while one is
// pending are merged.
func (m *Mapper) Reload() {
	select {
	case m.reloads <- struct{}{}:
	default:
	}
}

func (m *Mapper) reload() {
	if m.loader == nil {
		return
	}
	src, err := m.loader()
	if err != nil {
		m.metrics.MeshReloads.WithLabelValues("error").Inc()
		log.Printf("[mapper] keeping previous mesh state: %v", err)
		return
	}
	m.mesh = src
	m.metrics.MeshReloads.WithLabelValues("ok").Inc()
	log.Printf("[mapper] mesh state reloaded: %d route slots", src.Len())
	m.bus.Publish(Event{
		Type:    EventMeshReloaded,
		Payload: map[string]int{"route_slots": src.Len()},
	})
}

// Snapshot copies the topology from the loop. It blocks until Run serves the
// request or ctx ends.
func (m *Mapper) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case m.snapshots <- reply:
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (m *Mapper) view() View {
	snap := domain.NewSnapshot(m.registry)
	snap.Context = m.sched.Context()
	return View{
		Topology: snap,
		Tree:     printer.Walk(m.registry, m.cfg.MaxPrintDepth),
		Cursor:   m.sched.Cursor(),
	}
}
