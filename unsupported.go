package kvfs

// DefaultNode gives every optional Node operation a default that fails with
// Unsupported. Embed it and override what the backend implements; Type and
// GetAttr must always be provided by the embedder.
type DefaultNode struct{}

func (DefaultNode) SetMode(uint32) error { return Unsupported }

func (DefaultNode) ReadAt([]byte, int64) (int, error) { return 0, Unsupported }

func (DefaultNode) WriteAt([]byte, int64) (int, error) { return 0, Unsupported }

func (DefaultNode) Fsync() error { return Unsupported }

func (DefaultNode) Truncate(int64) error { return Unsupported }

func (DefaultNode) Parent() (Node, error) { return nil, Unsupported }

func (DefaultNode) Lookup(RelPath) (Node, error) { return nil, Unsupported }

func (DefaultNode) Create(RelPath, NodeType, uint32) (Node, error) { return nil, Unsupported }

func (DefaultNode) Link(RelPath, Node) error { return Unsupported }

func (DefaultNode) Unlink(RelPath) error { return Unsupported }

func (DefaultNode) Rename(RelPath, RelPath) error { return Unsupported }

func (DefaultNode) ReadDir(int, []DirEntry) (int, error) { return 0, Unsupported }

func (DefaultNode) IsEmpty() (bool, error) { return false, Unsupported }

func (DefaultNode) Ioctl(uint, any) (int, error) { return 0, Unsupported }

func (DefaultNode) Poll() (PollEvents, error) { return 0, Unsupported }

// Open keeps the receiver: a nil node with a nil error tells the caller to
// bind the node it opened.
func (DefaultNode) Open(OpenFlags) (Node, error) { return nil, nil }

func (DefaultNode) Release(OpenFlags) error { return nil }

// DefaultLeaf is DefaultNode for non-directory nodes: directory operations
// fail with NotADirectory instead.
type DefaultLeaf struct {
	DefaultNode
}

func (DefaultLeaf) Parent() (Node, error) { return nil, NotADirectory }

func (DefaultLeaf) Lookup(RelPath) (Node, error) { return nil, NotADirectory }

func (DefaultLeaf) Create(RelPath, NodeType, uint32) (Node, error) { return nil, NotADirectory }

func (DefaultLeaf) Link(RelPath, Node) error { return NotADirectory }

func (DefaultLeaf) Unlink(RelPath) error { return NotADirectory }

func (DefaultLeaf) Rename(RelPath, RelPath) error { return NotADirectory }

func (DefaultLeaf) ReadDir(int, []DirEntry) (int, error) { return 0, NotADirectory }

func (DefaultLeaf) IsEmpty() (bool, error) { return false, NotADirectory }
