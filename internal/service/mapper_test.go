package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"meshmap/internal/domain"
	"meshmap/internal/mesh"
	"meshmap/internal/metrics"
	"meshmap/internal/protocol"
	"meshmap/internal/scheduler"
	"meshmap/internal/transport"
)

var (
	rootAddr = domain.MustParseAddress("aaaa::212:7401:1:101")
	nodeB    = domain.MustParseAddress("aaaa::212:7402:2:202")
	nodeC    = domain.MustParseAddress("aaaa::212:7403:3:303")
	nodeD    = domain.MustParseAddress("aaaa::212:7404:4:404")
	dagX     = rootAddr
)

type sent struct {
	to      domain.Address
	payload []byte
}

// fakeSender records probes instead of sending them
type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) SendTo(addr domain.Address, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to: addr, payload: payload})
	return nil
}

func (f *fakeSender) targets() []domain.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Address, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.to
	}
	return out
}

// scenarioState is a routing table holding B, C, D under instance 1 / DAG X
func scenarioState(t *testing.T) *mesh.State {
	t.Helper()
	s := mesh.NewState(4, 1, 1)
	for i, a := range []domain.Address{nodeB, nodeC, nodeD} {
		if err := s.SetRoute(i, a); err != nil {
			t.Fatalf("set route: %v", err)
		}
	}
	s.SetInstance(0, 1)
	s.SetDAG(0, 0, dagX)
	return s
}

type harness struct {
	mapper  *Mapper
	sender  *fakeSender
	metrics *metrics.Metrics
	console *bytes.Buffer
	events  chan Event
}

func newHarness(t *testing.T, cfg MapperConfig, src mesh.Source) *harness {
	t.Helper()
	h := &harness{
		sender:  &fakeSender{},
		metrics: metrics.New(),
		console: &bytes.Buffer{},
		events:  make(chan Event, 64),
	}
	bus := NewEventBus()
	bus.Subscribe(h.events)

	m, err := NewMapper(cfg, src, mesh.StaticIdentity{Address: rootAddr}, h.sender,
		WithEventBus(bus), WithMetrics(h.metrics), WithConsole(h.console))
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	h.mapper = m
	return h
}

// report builds a report datagram with link-local addresses, as nodes send them
func report(source, parent domain.Address) transport.Datagram {
	return transport.Datagram{Payload: protocol.Report{
		Source:     source.Normalize(0xfe80),
		InstanceID: 1,
		DAGID:      dagX,
		Parent:     parent.Normalize(0xfe80),
	}.Encode()}
}

func childrenOf(t *testing.T, v View, a domain.Address) []domain.Address {
	t.Helper()
	for _, n := range v.Topology.Nodes {
		if n.Address == a {
			return n.Children
		}
	}
	t.Fatalf("node %s not registered", a)
	return nil
}

func TestNewMapperSeedsRoot(t *testing.T) {
	h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
	v := h.mapper.view()

	if v.Topology.Root == nil || *v.Topology.Root != rootAddr {
		t.Fatalf("expected root %s, got %v", rootAddr, v.Topology.Root)
	}
	if len(v.Topology.Nodes) != 1 {
		t.Errorf("expected only the root registered, got %d", len(v.Topology.Nodes))
	}
}

func TestNewMapperWithoutIdentity(t *testing.T) {
	_, err := NewMapper(DefaultMapperConfig(), scenarioState(t), mesh.StaticIdentity{}, &fakeSender{})
	if !errors.Is(err, ErrNoRootAddress) {
		t.Errorf("expected ErrNoRootAddress, got %v", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
	m := h.mapper

	for i := 0; i < 3; i++ {
		res := m.OnSlowTick()
		if res.Outcome != scheduler.OutcomeProbe {
			t.Fatalf("tick %d: expected probe, got %s", i, res.Outcome)
		}
	}

	want := []domain.Address{nodeB, nodeC, nodeD}
	got := h.sender.targets()
	if len(got) != len(want) {
		t.Fatalf("expected %d probes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("probe %d went to %s, want %s", i, got[i], want[i])
		}
	}
	probe, err := protocol.DecodeProbe(h.sender.sent[0].payload)
	if err != nil || probe.InstanceID != 1 || probe.DAGID != dagX {
		t.Errorf("unexpected probe %+v (%v)", probe, err)
	}

	if attached, err := m.HandleDatagram(report(nodeB, rootAddr)); err != nil || !attached {
		t.Fatalf("B report: attached=%v err=%v", attached, err)
	}
	if attached, err := m.HandleDatagram(report(nodeC, nodeB)); err != nil || !attached {
		t.Fatalf("C report: attached=%v err=%v", attached, err)
	}

	v := m.view()
	if c := childrenOf(t, v, rootAddr); len(c) != 1 || c[0] != nodeB {
		t.Errorf("root children = %v, want [%s]", c, nodeB)
	}
	if c := childrenOf(t, v, nodeB); len(c) != 1 || c[0] != nodeC {
		t.Errorf("B children = %v, want [%s]", c, nodeC)
	}
	if c := childrenOf(t, v, nodeC); len(c) != 0 {
		t.Errorf("C children = %v, want none", c)
	}
	for _, n := range v.Topology.Nodes {
		if n.Address == nodeD && n.Parent != nil {
			t.Errorf("D should be parentless, has %s", *n.Parent)
		}
	}
	for _, l := range v.Tree.Lines {
		if l.Address == nodeD {
			t.Error("D must not appear in the tree under the root")
		}
	}
	if len(v.Tree.Lines) != 3 {
		t.Errorf("expected 3 tree lines, got %d", len(v.Tree.Lines))
	}

	out := h.console.String()
	if !strings.Contains(out, "  "+nodeB.String()+"\n    "+nodeC.String()+"\n") {
		t.Errorf("console missing rendered tree:\n%s", out)
	}
	if got := testutil.ToFloat64(h.metrics.EdgesAttached); got != 2 {
		t.Errorf("expected 2 edges attached, got %v", got)
	}
}

func TestHandleDatagramRejections(t *testing.T) {
	t.Run("malformed report mutates nothing", func(t *testing.T) {
		h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
		h.mapper.OnSlowTick()
		before := h.mapper.view()

		_, err := h.mapper.HandleDatagram(transport.Datagram{Payload: make([]byte, protocol.ReportMinLen-1)})
		if !errors.Is(err, protocol.ErrMalformedMessage) {
			t.Fatalf("expected ErrMalformedMessage, got %v", err)
		}
		after := h.mapper.view()
		if len(after.Topology.Nodes) != len(before.Topology.Nodes) || len(after.Topology.Edges) != 0 {
			t.Error("malformed report changed the topology")
		}
		if got := testutil.ToFloat64(h.metrics.ReportsMalformed); got != 1 {
			t.Errorf("expected 1 malformed report, got %v", got)
		}
	})

	t.Run("unregistered source is dropped", func(t *testing.T) {
		h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
		attached, err := h.mapper.HandleDatagram(report(nodeB, rootAddr))
		if err != nil || attached {
			t.Errorf("expected silent drop, got attached=%v err=%v", attached, err)
		}
		if len(h.mapper.view().Topology.Nodes) != 1 {
			t.Error("unsolicited report must not register nodes")
		}
		reason := h.metrics.ReportsDiscarded.WithLabelValues(metrics.ReasonUnregisteredSource)
		if got := testutil.ToFloat64(reason); got != 1 {
			t.Errorf("expected 1 discard, got %v", got)
		}
	})

	t.Run("unregistered parent is dropped", func(t *testing.T) {
		h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
		h.mapper.OnSlowTick() // registers B
		attached, err := h.mapper.HandleDatagram(report(nodeB, nodeD))
		if err != nil || attached {
			t.Errorf("expected silent drop, got attached=%v err=%v", attached, err)
		}
		reason := h.metrics.ReportsDiscarded.WithLabelValues(metrics.ReasonUnregisteredParent)
		if got := testutil.ToFloat64(reason); got != 1 {
			t.Errorf("expected 1 discard, got %v", got)
		}
	})

	t.Run("duplicate report is idempotent", func(t *testing.T) {
		h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
		h.mapper.OnSlowTick()
		h.mapper.HandleDatagram(report(nodeB, rootAddr))
		attached, err := h.mapper.HandleDatagram(report(nodeB, rootAddr))
		if err != nil || attached {
			t.Errorf("expected no-op, got attached=%v err=%v", attached, err)
		}
		if c := childrenOf(t, h.mapper.view(), rootAddr); len(c) != 1 {
			t.Errorf("expected 1 child, got %d", len(c))
		}
	})

	t.Run("second parent is ignored", func(t *testing.T) {
		h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
		h.mapper.OnSlowTick()
		h.mapper.OnSlowTick()
		h.mapper.HandleDatagram(report(nodeC, rootAddr))
		_, err := h.mapper.HandleDatagram(report(nodeC, nodeB))
		if !errors.Is(err, domain.ErrAlreadyParented) {
			t.Fatalf("expected ErrAlreadyParented, got %v", err)
		}
		if c := childrenOf(t, h.mapper.view(), nodeB); len(c) != 0 {
			t.Errorf("expected B to stay childless, got %v", c)
		}
	})

	t.Run("report from an earlier sweep still attaches", func(t *testing.T) {
		h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
		h.mapper.OnSlowTick()
		d := transport.Datagram{Payload: protocol.Report{
			Source:     nodeB.Normalize(0xfe80),
			InstanceID: 9,
			DAGID:      dagX,
			Parent:     rootAddr.Normalize(0xfe80),
		}.Encode()}
		attached, err := h.mapper.HandleDatagram(d)
		if err != nil || !attached {
			t.Fatalf("expected edge, got attached=%v err=%v", attached, err)
		}
		if got := testutil.ToFloat64(h.metrics.ContextMismatch); got != 1 {
			t.Errorf("expected 1 context mismatch, got %v", got)
		}
		h.mapper.HandleDatagram(report(nodeB, rootAddr))
		if got := testutil.ToFloat64(h.metrics.ContextMismatch); got != 1 {
			t.Errorf("matching report counted as mismatch, got %v", got)
		}
	})

	t.Run("node naming itself as parent is rejected", func(t *testing.T) {
		h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
		h.mapper.OnSlowTick()
		_, err := h.mapper.HandleDatagram(report(nodeB, nodeB))
		if !errors.Is(err, domain.ErrSelfEdge) {
			t.Fatalf("expected ErrSelfEdge, got %v", err)
		}
		if c := childrenOf(t, h.mapper.view(), nodeB); len(c) != 0 {
			t.Errorf("expected B to stay childless, got %v", c)
		}
		reason := h.metrics.ReportsDiscarded.WithLabelValues(metrics.ReasonSelfEdge)
		if got := testutil.ToFloat64(reason); got != 1 {
			t.Errorf("expected 1 self_edge discard, got %v", got)
		}
	})

	t.Run("full child list is counted", func(t *testing.T) {
		cfg := DefaultMapperConfig()
		cfg.RegistryCapacity = 4 // one child per node
		h := newHarness(t, cfg, scenarioState(t))
		h.mapper.OnSlowTick()
		h.mapper.OnSlowTick()
		h.mapper.HandleDatagram(report(nodeB, rootAddr))
		_, err := h.mapper.HandleDatagram(report(nodeC, rootAddr))
		if !errors.Is(err, domain.ErrChildCapacityExceeded) {
			t.Fatalf("expected ErrChildCapacityExceeded, got %v", err)
		}
		if got := testutil.ToFloat64(h.metrics.ChildCapacity); got != 1 {
			t.Errorf("expected 1 capacity drop, got %v", got)
		}
	})
}

func TestRegistryFullDropsProbe(t *testing.T) {
	cfg := DefaultMapperConfig()
	cfg.RegistryCapacity = 2 // root plus one node
	h := newHarness(t, cfg, scenarioState(t))

	h.mapper.OnSlowTick()
	res := h.mapper.OnSlowTick()
	if res.Outcome != scheduler.OutcomeProbe || res.Target != nodeC {
		t.Fatalf("unexpected step %+v", res)
	}
	if n := len(h.sender.targets()); n != 1 {
		t.Errorf("expected only B to be probed, got %d probes", n)
	}
	if got := testutil.ToFloat64(h.metrics.RegistryFull); got != 1 {
		t.Errorf("expected 1 registry-full drop, got %v", got)
	}
}

func TestSendErrorIsCounted(t *testing.T) {
	h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
	h.sender.err = errors.New("no route")

	h.mapper.OnSlowTick()
	if got := testutil.ToFloat64(h.metrics.SendErrors); got != 1 {
		t.Errorf("expected 1 send error, got %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.ProbesSent); got != 0 {
		t.Errorf("expected no probes counted, got %v", got)
	}
}

func TestSweepCompletionEvent(t *testing.T) {
	h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
	for i := 0; i < 3; i++ {
		h.mapper.OnSlowTick()
	}

	var sweep *SweepPayload
	for len(h.events) > 0 {
		ev := <-h.events
		if ev.Type == EventSweepCompleted {
			p := ev.Payload.(SweepPayload)
			sweep = &p
		}
	}
	if sweep == nil {
		t.Fatal("expected sweep_completed event")
	}
	if sweep.Probes != 3 || sweep.Sweep == "" {
		t.Errorf("unexpected sweep payload %+v", sweep)
	}
	if got := testutil.ToFloat64(h.metrics.SweepsCompleted); got != 1 {
		t.Errorf("expected 1 sweep, got %v", got)
	}
}

func TestFastTickOnlyRefreshesGauges(t *testing.T) {
	h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
	h.mapper.OnSlowTick()
	before := h.mapper.sched.Cursor()

	for i := 0; i < 5; i++ {
		h.mapper.OnFastTick()
	}
	if n := len(h.sender.targets()); n != 1 {
		t.Errorf("fast ticks sent datagrams: %d sent", n)
	}
	if after := h.mapper.sched.Cursor(); after != before {
		t.Errorf("cursor moved from %+v to %+v", before, after)
	}
	if got := testutil.ToFloat64(h.metrics.RegistryNodes); got != 2 {
		t.Errorf("expected 2 registered nodes, got %v", got)
	}
}

func TestEmptyRoutingTableCountsNoSweeps(t *testing.T) {
	s := mesh.NewState(4, 1, 1)
	s.SetInstance(0, 1)
	s.SetDAG(0, 0, dagX)
	h := newHarness(t, DefaultMapperConfig(), s)

	for i := 0; i < 5; i++ {
		if res := h.mapper.OnSlowTick(); res.Outcome != scheduler.OutcomeIdle {
			t.Fatalf("tick %d: expected idle, got %s", i, res.Outcome)
		}
	}
	if got := testutil.ToFloat64(h.metrics.SweepsCompleted); got != 0 {
		t.Errorf("expected no sweeps counted, got %v", got)
	}
	for len(h.events) > 0 {
		if ev := <-h.events; ev.Type == EventSweepCompleted {
			t.Errorf("unexpected sweep_completed event %+v", ev.Payload)
		}
	}
}

func TestFailedReloadKeepsPreviousTables(t *testing.T) {
	h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
	m := h.mapper
	m.loader = func() (mesh.Source, error) {
		return mesh.ParseState([]byte("route_slots: -1\n"))
	}

	m.reload()
	if got := testutil.ToFloat64(h.metrics.MeshReloads.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed reload, got %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.MeshReloads.WithLabelValues("ok")); got != 0 {
		t.Errorf("expected no successful reload, got %v", got)
	}
	for i := 0; i < 3; i++ {
		m.OnSlowTick()
	}
	want := []domain.Address{nodeB, nodeC, nodeD}
	got := h.sender.targets()
	if len(got) != len(want) {
		t.Fatalf("expected %d datagrams, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("datagram %d went to %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunServesSnapshotsAndReloads(t *testing.T) {
	cfg := DefaultMapperConfig()
	cfg.FastInterval = 5 * time.Millisecond
	cfg.SlowInterval = 10 * time.Millisecond

	reloaded := mesh.NewState(4, 1, 1)
	reloaded.SetInstance(0, 2)
	reloaded.SetDAG(0, 0, dagX)
	reloaded.SetRoute(0, nodeD)

	h := &harness{sender: &fakeSender{}, metrics: metrics.New()}
	m, err := NewMapper(cfg, scenarioState(t), mesh.StaticIdentity{Address: rootAddr}, h.sender,
		WithMetrics(h.metrics),
		WithStateLoader(func() (mesh.Source, error) { return reloaded, nil }))
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	datagrams := make(chan transport.Datagram)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, datagrams) }()

	waitFor(t, func() bool { return len(h.sender.targets()) >= 3 })
	datagrams <- report(nodeB, rootAddr)

	snapCtx, snapCancel := context.WithTimeout(context.Background(), time.Second)
	defer snapCancel()
	v, err := m.Snapshot(snapCtx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if c := childrenOf(t, v, rootAddr); len(c) != 1 || c[0] != nodeB {
		t.Errorf("root children = %v, want [%s]", c, nodeB)
	}

	m.Reload()
	waitFor(t, func() bool {
		return testutil.ToFloat64(h.metrics.MeshReloads.WithLabelValues("ok")) == 1
	})
	waitFor(t, func() bool {
		c, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		v, err := m.Snapshot(c)
		return err == nil && v.Topology.Context.InstanceID == 2
	})

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSnapshotWithoutLoop(t *testing.T) {
	h := newHarness(t, DefaultMapperConfig(), scenarioState(t))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.mapper.Snapshot(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", 2*time.Second)
}
