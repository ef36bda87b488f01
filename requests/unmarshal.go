package requests

import (
	"fmt"
	"os"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
)

// LoadFile reads seed nodes from a YAML, JSON or JSONC file.
func LoadFile(path string) ([]NodeRequestDTO, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(path, data)
}

// Unmarshal decodes a list of seed nodes in the format path's extension
// names and validates each entry.
func Unmarshal(path string, data []byte) ([]NodeRequestDTO, error) {
	var reqs []NodeRequestDTO
	if err := config.Unmarshal(path, data, &reqs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes file: %w", err)
	}
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	return reqs, nil
}

// Validate checks the fields the request's type needs.
func (r *NodeRequestDTO) Validate() error {
	if kvfs.Abs(r.Path).IsRoot() {
		return fmt.Errorf("path %q: %w", r.Path, kvfs.InvalidInput)
	}
	switch r.Type {
	case FileNodeType:
		if r.Size != nil && *r.Size < 0 {
			return fmt.Errorf("%s: negative size: %w", r.Path, kvfs.InvalidInput)
		}
		if r.Source != nil {
			if r.Content != nil {
				return fmt.Errorf("%s: both content and source: %w", r.Path, kvfs.InvalidInput)
			}
			if err := r.Source.Validate(); err != nil {
				return fmt.Errorf("%s: %w", r.Path, err)
			}
		}
	case DirNodeType, FifoNodeType:
		if r.Content != nil || r.Size != nil || r.Source != nil {
			return fmt.Errorf("%s: content on a %s: %w", r.Path, r.Type, kvfs.InvalidInput)
		}
	case LinkNodeType:
		if r.Target == nil || *r.Target == "" {
			return fmt.Errorf("%s: link without target: %w", r.Path, kvfs.InvalidInput)
		}
	default:
		return fmt.Errorf("%s: unknown node type %q: %w", r.Path, r.Type, kvfs.InvalidInput)
	}
	return nil
}
