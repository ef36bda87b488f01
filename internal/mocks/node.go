package mocks

import (
	"github.com/brettbedarf/kvfs"
	"github.com/stretchr/testify/mock"
)

// MockNode implements kvfs.Node for testing across packages
type MockNode struct {
	mock.Mock
}

// node returns args.Get(i) as a kvfs.Node, treating an untyped nil as none.
func node(args mock.Arguments, i int) kvfs.Node {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(kvfs.Node)
}

func (m *MockNode) Type() kvfs.NodeType {
	args := m.Called()
	return args.Get(0).(kvfs.NodeType)
}

func (m *MockNode) GetAttr() (kvfs.Attr, error) {
	args := m.Called()
	return args.Get(0).(kvfs.Attr), args.Error(1)
}

func (m *MockNode) SetMode(mode uint32) error {
	return m.Called(mode).Error(0)
}

func (m *MockNode) ReadAt(p []byte, off int64) (int, error) {
	args := m.Called(p, off)

	// Handle function return types (for tests that fill the buffer)
	if fn, ok := args.Get(0).(func([]byte, int64) int); ok {
		return fn(p, off), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockNode) WriteAt(p []byte, off int64) (int, error) {
	args := m.Called(p, off)
	return args.Int(0), args.Error(1)
}

func (m *MockNode) Fsync() error {
	return m.Called().Error(0)
}

func (m *MockNode) Truncate(size int64) error {
	return m.Called(size).Error(0)
}

func (m *MockNode) Parent() (kvfs.Node, error) {
	args := m.Called()
	return node(args, 0), args.Error(1)
}

func (m *MockNode) Lookup(p kvfs.RelPath) (kvfs.Node, error) {
	args := m.Called(p)
	return node(args, 0), args.Error(1)
}

func (m *MockNode) Create(p kvfs.RelPath, typ kvfs.NodeType, mode uint32) (kvfs.Node, error) {
	args := m.Called(p, typ, mode)
	return node(args, 0), args.Error(1)
}

func (m *MockNode) Link(p kvfs.RelPath, target kvfs.Node) error {
	return m.Called(p, target).Error(0)
}

func (m *MockNode) Unlink(p kvfs.RelPath) error {
	return m.Called(p).Error(0)
}

func (m *MockNode) Rename(from, to kvfs.RelPath) error {
	return m.Called(from, to).Error(0)
}

func (m *MockNode) ReadDir(start int, buf []kvfs.DirEntry) (int, error) {
	args := m.Called(start, buf)
	return args.Int(0), args.Error(1)
}

func (m *MockNode) IsEmpty() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockNode) Open(flags kvfs.OpenFlags) (kvfs.Node, error) {
	args := m.Called(flags)
	return node(args, 0), args.Error(1)
}

func (m *MockNode) Release(flags kvfs.OpenFlags) error {
	return m.Called(flags).Error(0)
}

func (m *MockNode) Ioctl(cmd uint, arg any) (int, error) {
	args := m.Called(cmd, arg)
	return args.Int(0), args.Error(1)
}

func (m *MockNode) Poll() (kvfs.PollEvents, error) {
	args := m.Called()
	return args.Get(0).(kvfs.PollEvents), args.Error(1)
}

var _ kvfs.Node = (*MockNode)(nil)

// MockFileSystem implements kvfs.FileSystem for testing across packages
type MockFileSystem struct {
	mock.Mock
}

func (m *MockFileSystem) ID() string {
	return m.Called().String(0)
}

func (m *MockFileSystem) Name() string {
	return m.Called().String(0)
}

func (m *MockFileSystem) RootDir() kvfs.Node {
	return node(m.Called(), 0)
}

func (m *MockFileSystem) Unmount() error {
	return m.Called().Error(0)
}

var _ kvfs.FileSystem = (*MockFileSystem)(nil)
