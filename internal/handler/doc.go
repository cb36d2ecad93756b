// Package handler implements the HTTP diagnostic API for meshmap.
//
// # Handlers
//
// TopologyHandler serves read-only views of the mapped topology: the JSON
// snapshot, the printed tree, the node list, exports and the event journal.
// It also accepts a request to reload the mesh state file.
//
// # Response Format
//
// Success responses return JSON (or text/YAML for the tree and exports).
// Error responses return JSON with {error, details} structure.
//
// # Middleware
//
// Chain composes Recover, CORS and Logger around the mux.
package handler
