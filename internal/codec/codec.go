// Package codec writes topology snapshots in interchange formats.
package codec

import (
	"fmt"
	"io"

	"meshmap/internal/domain"
)

// Exporter writes a snapshot in one format
type Exporter interface {
	Export(snap *domain.Snapshot, w io.Writer) error
	Format() string
	ContentType() string
}

// ForFormat returns the exporter registered under name
func ForFormat(name string) (Exporter, error) {
	switch name {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", name)
	}
}
