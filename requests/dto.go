// Package requests decodes seed-node definitions and creates them in a
// mount table at boot.
package requests

// NodeCreateRequestType valid types are FileNodeType "file", DirNodeType
// "dir", FifoNodeType "fifo" and LinkNodeType "link".
type NodeCreateRequestType string

const (
	FileNodeType NodeCreateRequestType = "file"
	DirNodeType  NodeCreateRequestType = "dir"
	FifoNodeType NodeCreateRequestType = "fifo"
	LinkNodeType NodeCreateRequestType = "link"
)

// NodeRequestDTO is the file representation of one node to create. Missing
// parent directories are created along the way.
type NodeRequestDTO struct {
	Path    string                `json:"path" yaml:"path"`
	Type    NodeCreateRequestType `json:"type" yaml:"type"`
	Perms   *uint32               `json:"perms,omitempty" yaml:"perms,omitempty"`     // i.e. 0644
	Content *string               `json:"content,omitempty" yaml:"content,omitempty"` // file only
	Size    *int64                `json:"size,omitempty" yaml:"size,omitempty"`       // file only, applied after Content
	Target  *string               `json:"target,omitempty" yaml:"target,omitempty"`   // link only, absolute path
	Source  *Source               `json:"source,omitempty" yaml:"source,omitempty"`   // file only, instead of Content
}
