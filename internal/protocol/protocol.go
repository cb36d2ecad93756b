// Package protocol implements the mapper's datagram formats.
//
// A probe travels from the sink to a node and names the routing instance and
// DAG being mapped:
//
//	[0]      instance id
//	[1..17)  DAG id
//
// The node answers with a report. It puts its own address first, echoes the
// probe payload and appends its preferred parent:
//
//	[0..16)   source address
//	[16]      instance id (echoed)
//	[17..33)  DAG id (echoed)
//	[33..49)  parent address
package protocol

import (
	"errors"
	"fmt"

	"meshmap/internal/domain"
)

const (
	// ProbeLen is the encoded size of a probe
	ProbeLen = 1 + domain.AddrLen

	// ReportParentOffset is where the parent address starts in a report
	ReportParentOffset = 1 + 2*domain.AddrLen
	// ReportMinLen is the shortest report that can be decoded
	ReportMinLen = ReportParentOffset + domain.AddrLen

	reportInstanceOffset = domain.AddrLen
	reportDAGOffset      = reportInstanceOffset + 1
)

// ErrMalformedMessage is returned for datagrams too short to decode
var ErrMalformedMessage = errors.New("malformed message")

// Probe asks a node to report its parent in the given instance/DAG
type Probe struct {
	InstanceID uint8
	DAGID      domain.Address
}

// Encode renders the probe in wire format
func (p Probe) Encode() []byte {
	buf := make([]byte, ProbeLen)
	buf[0] = p.InstanceID
	copy(buf[1:], p.DAGID[:])
	return buf
}

// DecodeProbe parses a probe datagram
func DecodeProbe(b []byte) (Probe, error) {
	if len(b) < ProbeLen {
		return Probe{}, fmt.Errorf("probe: %d bytes, need %d: %w", len(b), ProbeLen, ErrMalformedMessage)
	}
	var p Probe
	p.InstanceID = b[0]
	copy(p.DAGID[:], b[1:ProbeLen])
	return p, nil
}

// Report is a node's answer to a probe. Addresses are as sent on the wire;
// use Normalized before registry lookups.
type Report struct {
	Source     domain.Address
	InstanceID uint8
	DAGID      domain.Address
	Parent     domain.Address
}

// Encode renders the report in wire format
func (r Report) Encode() []byte {
	buf := make([]byte, ReportMinLen)
	copy(buf, r.Source[:])
	buf[reportInstanceOffset] = r.InstanceID
	copy(buf[reportDAGOffset:], r.DAGID[:])
	copy(buf[ReportParentOffset:], r.Parent[:])
	return buf
}

// Normalized returns the report with source and parent folded onto the
// network scope given by prefix
func (r Report) Normalized(prefix uint16) Report {
	r.Source = r.Source.Normalize(prefix)
	r.Parent = r.Parent.Normalize(prefix)
	return r
}

// DecodeReport parses a report datagram. The length is checked before any
// field is read; trailing bytes are ignored.
func DecodeReport(b []byte) (Report, error) {
	if len(b) < ReportMinLen {
		return Report{}, fmt.Errorf("report: %d bytes, need %d: %w", len(b), ReportMinLen, ErrMalformedMessage)
	}
	var r Report
	copy(r.Source[:], b[:domain.AddrLen])
	r.InstanceID = b[reportInstanceOffset]
	copy(r.DAGID[:], b[reportDAGOffset:ReportParentOffset])
	copy(r.Parent[:], b[ReportParentOffset:ReportMinLen])
	return r, nil
}

// MatchesContext reports whether the echoed instance/DAG equal the sweep's
func (r Report) MatchesContext(ctx domain.ScanContext) bool {
	return ctx.Valid && r.InstanceID == ctx.InstanceID && r.DAGID == ctx.DAGID
}
