package devices

import (
	"fmt"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/internal/util"
	"go.uber.org/multierr"
)

// Installer places a node at a path of a fixed tree.
type Installer interface {
	Install(p kvfs.RelPath, node kvfs.Node) error
}

// Options selects the optional devices Populate installs.
type Options struct {
	// RAMDisks lists the sizes in bytes of ram0, ram1, ...
	RAMDisks []int
}

// Set holds the nodes installed by Populate.
type Set struct {
	Null    *Null
	Zero    *Zero
	Full    *Full
	Console *Console
	Ptmx    *PtyMux
	RAM     []*RAMDisk
}

// Populate installs the standard device nodes into fs.
func Populate(fs Installer, opts Options) (*Set, error) {
	logger := util.GetLogger("devices.Populate")
	set := &Set{
		Null:    NewNull(),
		Zero:    NewZero(),
		Full:    NewFull(),
		Console: NewConsole(),
		Ptmx:    NewPtyMux(),
	}
	nodes := []struct {
		path string
		node kvfs.Node
	}{
		{"null", set.Null},
		{"zero", set.Zero},
		{"full", set.Full},
		{"console", set.Console},
		{"ptmx", set.Ptmx},
	}
	for i, size := range opts.RAMDisks {
		disk := NewRAMDisk(uint32(i), size)
		set.RAM = append(set.RAM, disk)
		nodes = append(nodes, struct {
			path string
			node kvfs.Node
		}{fmt.Sprintf("ram%d", i), disk})
	}

	var err error
	for _, n := range nodes {
		err = multierr.Append(err, fs.Install(kvfs.Rel(n.path), n.node))
	}
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("count", len(nodes)).Msg("Installed devices")
	return set, nil
}
