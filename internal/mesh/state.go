package mesh

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"meshmap/internal/domain"
)

// Default slot counts, matching a small sink build
const (
	DefaultRouteSlots    = 16
	DefaultInstanceSlots = 1
	DefaultDAGSlots      = 2

	// MaxSlots bounds every table read from a state file
	MaxSlots = 1024
)

// State is a fixed-capacity snapshot of the routing layer. Unset slots are
// free. It satisfies Source.
type State struct {
	routes    []Route
	instances []Instance
	dags      [][]DAG
}

// NewState allocates empty tables with the given slot counts
func NewState(routeSlots, instanceSlots, dagSlots int) *State {
	s := &State{
		routes:    make([]Route, routeSlots),
		instances: make([]Instance, instanceSlots),
		dags:      make([][]DAG, instanceSlots),
	}
	for i := range s.dags {
		s.dags[i] = make([]DAG, dagSlots)
	}
	return s
}

// SetRoute fills routing slot i
func (s *State) SetRoute(i int, dest domain.Address) error {
	if i < 0 || i >= len(s.routes) {
		return fmt.Errorf("route slot %d out of range (%d slots)", i, len(s.routes))
	}
	s.routes[i] = Route{Used: true, Dest: dest}
	return nil
}

// SetInstance fills instance slot i
func (s *State) SetInstance(i int, id uint8) error {
	if i < 0 || i >= len(s.instances) {
		return fmt.Errorf("instance slot %d out of range (%d slots)", i, len(s.instances))
	}
	s.instances[i] = Instance{Used: true, ID: id}
	return nil
}

// SetDAG fills DAG slot j of instance i
func (s *State) SetDAG(i, j int, id domain.Address) error {
	if i < 0 || i >= len(s.dags) {
		return fmt.Errorf("instance slot %d out of range (%d slots)", i, len(s.dags))
	}
	if j < 0 || j >= len(s.dags[i]) {
		return fmt.Errorf("dag slot %d out of range (%d slots)", j, len(s.dags[i]))
	}
	s.dags[i][j] = DAG{Used: true, ID: id}
	return nil
}

func (s *State) Len() int { return len(s.routes) }

func (s *State) Route(i int) Route {
	if i < 0 || i >= len(s.routes) {
		return Route{}
	}
	return s.routes[i]
}

func (s *State) Instances() int { return len(s.instances) }

func (s *State) DAGsPerInstance() int {
	if len(s.dags) == 0 {
		return 0
	}
	return len(s.dags[0])
}

func (s *State) Instance(i int) Instance {
	if i < 0 || i >= len(s.instances) {
		return Instance{}
	}
	return s.instances[i]
}

func (s *State) DAG(i, j int) DAG {
	if i < 0 || i >= len(s.dags) || j < 0 || j >= len(s.dags[i]) {
		return DAG{}
	}
	return s.dags[i][j]
}

// UsedRoutes counts routing slots in use
func (s *State) UsedRoutes() int {
	n := 0
	for _, r := range s.routes {
		if r.Used {
			n++
		}
	}
	return n
}

// stateFile is the YAML export of the routing layer
type stateFile struct {
	RouteSlots    int            `yaml:"route_slots"`
	InstanceSlots int            `yaml:"instance_slots"`
	DAGSlots      int            `yaml:"dag_slots"`
	Routes        []routeYAML    `yaml:"routes"`
	Instances     []instanceYAML `yaml:"instances"`
}

type routeYAML struct {
	Slot *int           `yaml:"slot,omitempty"`
	Dest domain.Address `yaml:"dest"`
}

type instanceYAML struct {
	Slot *int      `yaml:"slot,omitempty"`
	ID   uint8     `yaml:"id"`
	DAGs []dagYAML `yaml:"dags"`
}

type dagYAML struct {
	Slot *int           `yaml:"slot,omitempty"`
	ID   domain.Address `yaml:"id"`
}

// LoadStateFile reads a routing layer export. Entries without an explicit
// slot fill slots in list order.
func LoadStateFile(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mesh state: %w", err)
	}
	return ParseState(data)
}

// ParseState decodes a routing layer export
func ParseState(data []byte) (*State, error) {
	var f stateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse mesh state: %w", err)
	}
	if f.RouteSlots == 0 {
		f.RouteSlots = DefaultRouteSlots
	}
	if f.InstanceSlots == 0 {
		f.InstanceSlots = DefaultInstanceSlots
	}
	if f.DAGSlots == 0 {
		f.DAGSlots = DefaultDAGSlots
	}
	for name, n := range map[string]int{
		"route_slots":    f.RouteSlots,
		"instance_slots": f.InstanceSlots,
		"dag_slots":      f.DAGSlots,
	} {
		if n < 1 || n > MaxSlots {
			return nil, fmt.Errorf("parse mesh state: %s %d out of range 1..%d", name, n, MaxSlots)
		}
	}

	s := NewState(f.RouteSlots, f.InstanceSlots, f.DAGSlots)
	routeSlots := make(map[int]bool, len(f.Routes))
	for i, r := range f.Routes {
		slot := slotOr(r.Slot, i)
		if routeSlots[slot] {
			return nil, fmt.Errorf("parse mesh state: route %s: slot %d assigned twice", r.Dest, slot)
		}
		routeSlots[slot] = true
		if err := s.SetRoute(slot, r.Dest); err != nil {
			return nil, fmt.Errorf("parse mesh state: route %s: %w", r.Dest, err)
		}
	}
	instanceSlots := make(map[int]bool, len(f.Instances))
	for i, inst := range f.Instances {
		slot := slotOr(inst.Slot, i)
		if instanceSlots[slot] {
			return nil, fmt.Errorf("parse mesh state: instance %d: slot %d assigned twice", inst.ID, slot)
		}
		instanceSlots[slot] = true
		if err := s.SetInstance(slot, inst.ID); err != nil {
			return nil, fmt.Errorf("parse mesh state: instance %d: %w", inst.ID, err)
		}
		dagSlots := make(map[int]bool, len(inst.DAGs))
		for j, d := range inst.DAGs {
			dslot := slotOr(d.Slot, j)
			if dagSlots[dslot] {
				return nil, fmt.Errorf("parse mesh state: instance %d dag %s: slot %d assigned twice", inst.ID, d.ID, dslot)
			}
			dagSlots[dslot] = true
			if err := s.SetDAG(slot, dslot, d.ID); err != nil {
				return nil, fmt.Errorf("parse mesh state: instance %d dag %s: %w", inst.ID, d.ID, err)
			}
		}
	}
	return s, nil
}

func slotOr(slot *int, def int) int {
	if slot != nil {
		return *slot
	}
	return def
}
