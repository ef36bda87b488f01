package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path"
	"syscall"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/fstype"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/posix"
	"github.com/brettbedarf/kvfs/requests"
	"github.com/brettbedarf/kvfs/server"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
)

func main() {
	var (
		configPath string
		nodesDef   string
		listPath   string
		verbose    int
		umount     bool
	)
	flagSet := pflag.NewFlagSet("kvfs", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "Path to config file (.yaml, .yml, .json or .jsonc)")
	flagSet.StringVarP(&nodesDef, "nodes", "n", "", "Path to nodes def file")
	flagSet.StringVarP(&listPath, "list", "l", "",
		"Build the filesystem, print the tree below this path and exit without mounting")
	flagSet.BoolVarP(&umount, "umount", "u", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flagSet.IntVarP(&verbose, "verbose", "v", 3, "Log verbosity level between 1 (error) and 5 (trace)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Config file first; an explicit --verbose wins over its log level.
	cfg := config.NewConfig(nil)
	if configPath != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
			os.Exit(1)
		}
	}
	if configPath == "" || flagSet.Changed("verbose") {
		cfg.Merge(&config.ConfigOverride{LogLvl: &verbose})
	}
	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")

	mnt := flagSet.Arg(0)
	logger.Info().Int("verbose", verbose).Str("config", configPath).Str("nodes", nodesDef).Str("mnt", mnt).
		Msg("kvfs initializing")
	if mnt == "" && listPath == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}

	fstype.RegisterBuiltins()
	root, err := fstype.Build(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build mount table")
	}

	if nodesDef != "" {
		reqs, err := requests.LoadFile(nodesDef)
		if err != nil {
			logger.Fatal().Err(err).Str("nodes", nodesDef).Msg("Failed to load nodes file")
		}
		// Downloads of http sources stop on the first interrupt.
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		stats, err := requests.Apply(ctx, root, reqs, cfg)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("Some nodes could not be added")
		}
		logger.Info().Interface("added", stats).Msg("Added new nodes to filesystem")
	} else {
		logger.Warn().Msg("No nodes file provided")
	}

	if listPath != "" {
		err := list(os.Stdout, posix.NewContext(root), listPath)
		err = multierr.Append(err, root.Close())
		if err != nil {
			logger.Fatal().Err(err).Msg("Listing failed")
		}
		return
	}

	// Try unmount if requested
	if umount {
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	srv := server.New(root, cfg)
	if err := srv.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	if err := srv.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}
	if err := root.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystems")
	}
}

// list prints the tree below p, one node per line.
func list(w io.Writer, c *posix.Context, p string) error {
	attr, err := c.Stat(p)
	if err != nil {
		return err
	}
	printAttr(w, c.Resolve(p).String(), attr)
	if attr.Type != kvfs.TypeDir {
		return nil
	}

	fd, err := c.Open(p, kvfs.ORdOnly|kvfs.ODirectory, 0)
	if err != nil {
		return err
	}
	defer c.Close(fd)

	buf := make([]kvfs.DirEntry, 32)
	for {
		n, err := c.ReadDir(fd, buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range buf[:n] {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			if err := list(w, c, path.Join(c.Resolve(p).String(), e.Name)); err != nil {
				return err
			}
		}
	}
}

func printAttr(w io.Writer, p string, a kvfs.Attr) {
	fmt.Fprintf(w, "%-8s %04o %3d %8s  %s\n", a.Type, a.Mode, a.Nlink, humanize.IBytes(a.Size), p)
}
