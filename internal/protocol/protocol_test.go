package protocol

import (
	"bytes"
	"errors"
	"testing"

	"meshmap/internal/domain"
)

func TestProbeEncode(t *testing.T) {
	dag := domain.MustParseAddress("aaaa::1")
	b := Probe{InstanceID: 30, DAGID: dag}.Encode()

	if len(b) != ProbeLen {
		t.Fatalf("expected %d bytes, got %d", ProbeLen, len(b))
	}
	if b[0] != 30 {
		t.Errorf("expected instance id 30, got %d", b[0])
	}
	if !bytes.Equal(b[1:], dag[:]) {
		t.Errorf("expected DAG id %x, got %x", dag[:], b[1:])
	}

	back, err := DecodeProbe(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.InstanceID != 30 || back.DAGID != dag {
		t.Errorf("decoded %+v", back)
	}
}

func TestReportLayout(t *testing.T) {
	if ReportParentOffset != 33 {
		t.Errorf("ReportParentOffset = %d, want 33", ReportParentOffset)
	}
	if ReportMinLen != 49 {
		t.Errorf("ReportMinLen = %d, want 49", ReportMinLen)
	}
}

func TestDecodeReport(t *testing.T) {
	src := domain.MustParseAddress("fe80::212:7402:2:202")
	parent := domain.MustParseAddress("fe80::212:7401:1:101")
	dag := domain.MustParseAddress("aaaa::212:7401:1:101")

	t.Run("reads every field at its offset", func(t *testing.T) {
		buf := make([]byte, ReportMinLen)
		copy(buf[0:16], src[:])
		buf[16] = 7
		copy(buf[17:33], dag[:])
		copy(buf[33:49], parent[:])

		r, err := DecodeReport(buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Source != src || r.Parent != parent || r.DAGID != dag || r.InstanceID != 7 {
			t.Errorf("decoded %+v", r)
		}
	})

	t.Run("trailing bytes are ignored", func(t *testing.T) {
		buf := append(Report{Source: src, Parent: parent}.Encode(), 0xde, 0xad)
		r, err := DecodeReport(buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Parent != parent {
			t.Errorf("expected parent %s, got %s", parent, r.Parent)
		}
	})

	t.Run("short datagrams are malformed", func(t *testing.T) {
		for _, n := range []int{0, 1, domain.AddrLen, ReportParentOffset, ReportMinLen - 1} {
			_, err := DecodeReport(make([]byte, n))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("len %d: expected ErrMalformedMessage, got %v", n, err)
			}
		}
	})
}

func TestReportNormalized(t *testing.T) {
	r := Report{
		Source: domain.MustParseAddress("fe80::2"),
		Parent: domain.MustParseAddress("fe80::1"),
	}.Normalized(domain.DefaultScopePrefix)

	if r.Source != domain.MustParseAddress("aaaa::2") {
		t.Errorf("unexpected source %s", r.Source)
	}
	if r.Parent != domain.MustParseAddress("aaaa::1") {
		t.Errorf("unexpected parent %s", r.Parent)
	}
}

func TestReportMatchesContext(t *testing.T) {
	dag := domain.MustParseAddress("aaaa::1")
	r := Report{InstanceID: 1, DAGID: dag}

	tests := []struct {
		name string
		ctx  domain.ScanContext
		want bool
	}{
		{"same pair", domain.ScanContext{InstanceID: 1, DAGID: dag, Valid: true}, true},
		{"other instance", domain.ScanContext{InstanceID: 2, DAGID: dag, Valid: true}, false},
		{"other dag", domain.ScanContext{InstanceID: 1, DAGID: domain.MustParseAddress("aaaa::2"), Valid: true}, false},
		{"no context", domain.ScanContext{InstanceID: 1, DAGID: dag}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.MatchesContext(tt.ctx); got != tt.want {
				t.Errorf("MatchesContext = %v, want %v", got, tt.want)
			}
		})
	}
}
