//go:build !(js && wasm)

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/voxelsplace/boxfish/api"
	"github.com/voxelsplace/boxfish/config"
	"github.com/voxelsplace/boxfish/importer"
	"github.com/voxelsplace/boxfish/snapshot"
)

func usage() {
	fmt.Println("Usage: boxfish <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  gen output.bxsnap                      (generate heightmap terrain)")
	fmt.Println("  noise <percentage> output.bxsnap       (generate random noise chunks)")
	fmt.Println("  import <source> output.bxsnap          (import .vopl/.voplpack/.rle/.bxsnap; source may be a URL)")
	fmt.Println("  glb input.bxsnap output.glb            (mesh a snapshot into a binary glTF)")
	fmt.Println("  stats input.bxsnap                     (describe a snapshot)")
	fmt.Println("  rle2vopl input.rle output.vopl         (expand a run-length file)")
	fmt.Println("  pack output.voplpack input1.vopl [input2.vopl ...]")
	fmt.Println("  unpack input.voplpack output_dir")
	fmt.Println("Settings are read from the YAML file named by $" + config.EnvPath + ".")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cfg, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	level, _ := cfg.Log.SlogLevel()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, os.Args[1], os.Args[2:]); err != nil {
		log.Error("command failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, cmd string, args []string) error {
	comp, err := snapshot.ParseCompression(cfg.Snapshot.Compression)
	if err != nil {
		return err
	}
	opts, err := cfg.VolumeOptions(log)
	if err != nil {
		return err
	}

	switch cmd {
	case "gen":
		if len(args) != 1 {
			break
		}
		data, err := api.GenerateSnapshot(ctx, cfg.Terrain.Seed, cfg.Terrain.Radius, cfg.Terrain.Height, comp)
		if err != nil {
			return err
		}
		return writeOut(log, args[0], data)
	case "noise":
		if len(args) != 2 {
			break
		}
		pct, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("percentage: %w", err)
		}
		data, err := api.NoiseSnapshot(ctx, cfg.Terrain.Seed, cfg.Terrain.Radius, pct, comp)
		if err != nil {
			return err
		}
		return writeOut(log, args[1], data)
	case "import":
		if len(args) != 2 {
			break
		}
		tmp, err := os.MkdirTemp("", "boxfish-fetch-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		path, err := importer.Fetch(ctx, args[0], tmp)
		if err != nil {
			return err
		}
		in, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		data, err := api.ImportToSnapshot(ctx, path, in, comp, log)
		if err != nil {
			return err
		}
		return writeOut(log, args[1], data)
	case "glb":
		if len(args) != 2 {
			break
		}
		in, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		data, err := api.SnapshotToGLB(ctx, in, opts)
		if err != nil {
			return err
		}
		return writeOut(log, args[1], data)
	case "stats":
		if len(args) != 1 {
			break
		}
		in, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		info, err := api.Stats(in)
		if err != nil {
			return err
		}
		fmt.Printf("compression: %s\nrecord size: %d bytes\nchunks: %d\npayloads: %d (dense %d, sparse %d, fill %d)\n",
			info.Compression, info.RecordSize, info.Chunks, info.Payloads, info.Dense, info.Sparse, info.Fill)
		return nil
	case "rle2vopl":
		if len(args) != 2 {
			break
		}
		in, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		data, err := api.RLEToVOPL(string(in))
		if err != nil {
			return err
		}
		return writeOut(log, args[1], data)
	case "pack":
		if len(args) < 2 {
			break
		}
		files := make(map[string][]byte, len(args)-1)
		for _, p := range args[1:] {
			b, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			files[filepath.Base(p)] = b
		}
		data, err := api.PackVOPLs(files)
		if err != nil {
			return err
		}
		return writeOut(log, args[0], data)
	case "unpack":
		if len(args) != 2 {
			break
		}
		in, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		files, err := api.UnpackVOPLPack(in)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(args[1], 0o755); err != nil {
			return err
		}
		for name, b := range files {
			if err := writeOut(log, filepath.Join(args[1], filepath.Base(name)), b); err != nil {
				return err
			}
		}
		return nil
	}
	usage()
	return fmt.Errorf("bad usage of %q", cmd)
}

func writeOut(log *slog.Logger, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Info("wrote file", "path", path, "bytes", len(data))
	return nil
}
