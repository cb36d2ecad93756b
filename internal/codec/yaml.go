package codec

import (
	"fmt"
	"io"

	"meshmap/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the MIME type of the output
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// yamlTopology is the YAML layout of a snapshot. Addresses are written as
// strings so the document reads like the console tree.
type yamlTopology struct {
	TakenAt  string     `yaml:"taken_at"`
	Root     string     `yaml:"root,omitempty"`
	Capacity int        `yaml:"capacity"`
	Context  *yamlScope `yaml:"context,omitempty"`
	Nodes    []yamlNode `yaml:"nodes"`
	Edges    []yamlEdge `yaml:"edges"`
}

type yamlScope struct {
	InstanceID uint8  `yaml:"instance_id"`
	DAGID      string `yaml:"dag_id"`
}

type yamlNode struct {
	Index    int      `yaml:"index"`
	Address  string   `yaml:"address"`
	Parent   string   `yaml:"parent,omitempty"`
	Children []string `yaml:"children,omitempty"`
}

type yamlEdge struct {
	Child  string `yaml:"child"`
	Parent string `yaml:"parent"`
}

// Export writes the snapshot as YAML
func (c *YAMLCodec) Export(snap *domain.Snapshot, w io.Writer) error {
	yt := yamlTopology{
		TakenAt:  snap.TakenAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Capacity: snap.Capacity,
		Nodes:    make([]yamlNode, 0, len(snap.Nodes)),
		Edges:    make([]yamlEdge, 0, len(snap.Edges)),
	}
	if snap.Root != nil {
		yt.Root = snap.Root.String()
	}
	if snap.Context.Valid {
		yt.Context = &yamlScope{
			InstanceID: snap.Context.InstanceID,
			DAGID:      snap.Context.DAGID.String(),
		}
	}

	for _, node := range snap.Nodes {
		yn := yamlNode{
			Index:   node.Index,
			Address: node.Address.String(),
		}
		if node.Parent != nil {
			yn.Parent = node.Parent.String()
		}
		for _, child := range node.Children {
			yn.Children = append(yn.Children, child.String())
		}
		yt.Nodes = append(yt.Nodes, yn)
	}

	for _, edge := range snap.Edges {
		yt.Edges = append(yt.Edges, yamlEdge{
			Child:  edge.Child.String(),
			Parent: edge.Parent.String(),
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&yt); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
