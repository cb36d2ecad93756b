// Package mesh describes what the mapper reads from the mesh routing layer.
//
// The mapper never computes routes. It reads the sink's routing table to
// find probe targets and the instance/DAG directory to learn which routing
// trees exist. Both are fixed-capacity slot tables where each slot is either
// in use or free, matching how the routing layer stores them.
package mesh

import "meshmap/internal/domain"

// Route is one routing table slot
type Route struct {
	Used bool
	Dest domain.Address
}

// Instance is one routing instance slot
type Instance struct {
	Used bool
	ID   uint8
}

// DAG is one DAG slot inside an instance
type DAG struct {
	Used bool
	ID   domain.Address
}

// RoutingTable exposes the routing layer's downward routes
type RoutingTable interface {
	Len() int
	Route(i int) Route
}

// Directory exposes the routing instances and their DAGs
type Directory interface {
	Instances() int
	DAGsPerInstance() int
	Instance(i int) Instance
	DAG(instance, dag int) DAG
}

// Identity provides the sink's own global address
type Identity interface {
	GlobalAddress() (domain.Address, error)
}

// Source bundles the routing table and directory read by one sweep step
type Source interface {
	RoutingTable
	Directory
}
