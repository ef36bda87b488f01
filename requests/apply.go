package requests

import (
	"cmp"
	"context"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/handle"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/mount"
	"go.uber.org/multierr"
)

// Stats counts the nodes Apply created, by type.
type Stats map[NodeCreateRequestType]int

// Seeder creates seed nodes, downloading file sources with Client.
type Seeder struct {
	Client HTTPClient
}

// DefaultSeeder uses http.DefaultClient.
var DefaultSeeder = &Seeder{Client: http.DefaultClient}

// Apply creates reqs in root with DefaultSeeder.
func Apply(ctx context.Context, root *mount.RootDirectory, reqs []NodeRequestDTO, cfg *config.Config) (Stats, error) {
	return DefaultSeeder.Apply(ctx, root, reqs, cfg)
}

// Apply creates reqs in root: directories first, then files and fifos,
// then links. A failing request is logged and skipped; all failures are
// returned together.
func (s *Seeder) Apply(ctx context.Context, root *mount.RootDirectory, reqs []NodeRequestDTO, cfg *config.Config) (Stats, error) {
	logger := util.GetLogger("requests.Apply")
	ordered := slices.Clone(reqs)
	slices.SortStableFunc(ordered, func(a, b NodeRequestDTO) int {
		return cmp.Compare(rank(a.Type), rank(b.Type))
	})

	stats := Stats{}
	var errs error
	for _, req := range ordered {
		if err := s.apply(ctx, root, req, cfg); err != nil {
			logger.Debug().Err(err).Str("path", req.Path).Str("type", string(req.Type)).Msg("Failed to add node")
			errs = multierr.Append(errs, err)
			continue
		}
		stats[req.Type]++
	}
	logger.Info().
		Int("directories", stats[DirNodeType]).
		Int("files", stats[FileNodeType]).
		Int("fifos", stats[FifoNodeType]).
		Int("links", stats[LinkNodeType]).
		Msg("Added seed nodes")
	return stats, errs
}

func rank(t NodeCreateRequestType) int {
	switch t {
	case DirNodeType:
		return 0
	case LinkNodeType:
		return 2
	default:
		return 1
	}
}

func (s *Seeder) apply(ctx context.Context, root *mount.RootDirectory, req NodeRequestDTO, cfg *config.Config) error {
	if err := req.Validate(); err != nil {
		return err
	}
	p := kvfs.Abs(req.Path)
	switch req.Type {
	case DirNodeType:
		_, err := root.CreateRecursive(p, kvfs.TypeDir, util.ValueOrDefault(req.Perms, cfg.DirMode))
		return err
	case FifoNodeType:
		_, err := root.CreateRecursive(p, kvfs.TypeFifo, util.ValueOrDefault(req.Perms, cfg.FileMode))
		return err
	case LinkNodeType:
		target, err := root.Lookup(kvfs.Abs(*req.Target))
		if err != nil {
			return err
		}
		if _, err := root.CreateRecursive(p.Parent(), kvfs.TypeDir, cfg.DirMode); err != nil {
			return err
		}
		return root.Link(p, target)
	}
	return s.applyFile(ctx, root, p, req, cfg)
}

// applyFile creates the file writable, fills it and then sets the
// requested mode.
func (s *Seeder) applyFile(ctx context.Context, root *mount.RootDirectory, p kvfs.AbsPath, req NodeRequestDTO, cfg *config.Config) error {
	node, err := root.CreateRecursive(p, kvfs.TypeFile, 0o600)
	if err != nil {
		return err
	}
	if req.Content != nil || req.Size != nil || req.Source != nil {
		f, err := handle.OpenNode(p, node, kvfs.OWrOnly)
		if err != nil {
			return err
		}
		switch {
		case req.Content != nil:
			_, err = f.Write([]byte(*req.Content))
		case req.Source != nil:
			err = s.download(ctx, f, req.Source)
		}
		if err == nil && req.Size != nil {
			err = f.Truncate(*req.Size)
		}
		if err = multierr.Append(err, f.Close()); err != nil {
			return err
		}
	}
	err = node.SetMode(util.ValueOrDefault(req.Perms, cfg.FileMode))
	if errors.Is(err, kvfs.Unsupported) {
		return nil
	}
	return kvfs.NewPathError("chmod", p.String(), err)
}

func (s *Seeder) download(ctx context.Context, w io.Writer, src *Source) error {
	logger := util.GetLogger("Seeder.download")
	body, err := s.open(ctx, src)
	if err != nil {
		return err
	}
	defer body.Close()
	n, err := io.Copy(w, body)
	logger.Debug().Str("url", src.URL).Int64("bytes", n).Err(err).Msg("Downloaded source")
	return err
}
