package requests

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/filesystem"
	"github.com/brettbedarf/kvfs/handle"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/mount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
- path: /etc/motd
  type: file
  content: "welcome\n"
  perms: 0o444
- path: /var/log
  type: dir
- path: /run/ctl
  type: fifo
- path: /etc/issue
  type: link
  target: /etc/motd
- path: /var/big
  type: file
  size: 4096
`

func newTestRoot(t *testing.T) *mount.RootDirectory {
	t.Helper()
	root, err := mount.NewRootDirectory([]mount.MountPoint{
		{Path: kvfs.Abs("/"), FS: filesystem.NewRamFS(filesystem.Options{})},
	})
	require.NoError(t, err)
	t.Cleanup(func() { root.Close() })
	return root
}

func TestUnmarshal_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		data string
	}{
		{"yaml", "nodes.yaml", seedYAML},
		{"json", "nodes.json", `[{"path":"/a","type":"dir"},{"path":"/a/b","type":"file","content":"x","perms":420}]`},
		{"jsonc", "nodes.jsonc", `[
			// a directory
			{"path": "/a", "type": "dir"},
			/* a file */
			{"path": "/a/b", "type": "file", "content": "x", "perms": 420}
		]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reqs, err := Unmarshal(tt.path, []byte(tt.data))
			require.NoError(t, err)
			require.NotEmpty(t, reqs)
			assert.True(t, slices.ContainsFunc(reqs, func(r NodeRequestDTO) bool {
				return r.Type == DirNodeType
			}))
		})
	}

	reqs, err := Unmarshal("nodes.yaml", []byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, reqs, 5)
	assert.Equal(t, uint32(0o444), *reqs[0].Perms)
	assert.Equal(t, "welcome\n", *reqs[0].Content)
	assert.Equal(t, "/etc/motd", *reqs[3].Target)
	assert.Equal(t, int64(4096), *reqs[4].Size)
}

func TestUnmarshal_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"root path", `[{"path":"/","type":"dir"}]`},
		{"unknown type", `[{"path":"/x","type":"socket"}]`},
		{"link without target", `[{"path":"/x","type":"link"}]`},
		{"dir with content", `[{"path":"/x","type":"dir","content":"no"}]`},
		{"negative size", `[{"path":"/x","type":"file","size":-1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Unmarshal("nodes.json", []byte(tt.data))
			assert.ErrorIs(t, err, kvfs.InvalidInput)
		})
	}

	_, err := Unmarshal("nodes.json", []byte(`{"not":"a list"}`))
	assert.Error(t, err)
	_, err = Unmarshal("nodes.toml", []byte(``))
	assert.ErrorContains(t, err, "unknown config file extension")
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nodes.yml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	reqs, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, reqs, 5)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, os.IsNotExist(err))
}

func TestApply(t *testing.T) {
	t.Parallel()

	root := newTestRoot(t)
	reqs, err := Unmarshal("nodes.yaml", []byte(seedYAML))
	require.NoError(t, err)

	// The link is listed before its target on purpose: links are applied last.
	reqs = append([]NodeRequestDTO{reqs[3]}, append(reqs[:3:3], reqs[4])...)
	stats, err := Apply(context.Background(), root, reqs, config.NewConfig(nil))
	require.NoError(t, err)
	assert.Equal(t, Stats{FileNodeType: 2, DirNodeType: 1, FifoNodeType: 1, LinkNodeType: 1}, stats)

	f, err := handle.Open(root, kvfs.Abs("/etc/issue"), kvfs.ORdOnly, 0)
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "welcome\n", string(got))

	motd, err := root.Stat(kvfs.Abs("/etc/motd"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0o444), motd.Mode)
	assert.Equal(t, uint32(2), motd.Nlink)

	logDir, err := root.Stat(kvfs.Abs("/var/log"))
	require.NoError(t, err)
	assert.Equal(t, kvfs.TypeDir, logDir.Type)
	assert.Equal(t, config.DefaultDirMode, logDir.Mode)

	ctl, err := root.Stat(kvfs.Abs("/run/ctl"))
	require.NoError(t, err)
	assert.Equal(t, kvfs.TypeFifo, ctl.Type)

	big, err := root.Stat(kvfs.Abs("/var/big"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), big.Size)
	assert.Equal(t, config.DefaultFileMode, big.Mode)
}

func TestApply_ContinuesPastFailures(t *testing.T) {
	t.Parallel()

	root := newTestRoot(t)
	reqs := []NodeRequestDTO{
		{Path: "/a", Type: FileNodeType},
		{Path: "/a/b", Type: FileNodeType},
		{Path: "/dangling", Type: LinkNodeType, Target: util.Pointer("/nowhere")},
		{Path: "/c", Type: DirNodeType},
	}
	stats, err := Apply(context.Background(), root, reqs, config.NewConfig(nil))
	assert.ErrorIs(t, err, kvfs.NotADirectory)
	assert.ErrorIs(t, err, kvfs.NotFound)
	assert.Equal(t, Stats{FileNodeType: 1, DirNodeType: 1}, stats)

	_, err = root.Stat(kvfs.Abs("/c"))
	assert.NoError(t, err)
}
