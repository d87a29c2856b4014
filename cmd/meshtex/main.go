// meshtex is a CLI for texturing reconstructed surface meshes from
// calibrated multi-view photo sets.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/meshforge/meshtex/internal/config"
	"github.com/meshforge/meshtex/internal/logger"
	"github.com/meshforge/meshtex/internal/scene"
	"github.com/meshforge/meshtex/internal/texturing"
	"github.com/meshforge/meshtex/pkg/formats"
)

var (
	flagOut  = flag.String("o", ".", "Output directory")
	flagName = flag.String("name", "textured", "Output file basename")
	flagFlip = flag.Bool("flip", false, "Flip face winding when loading OBJ meshes")
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "texture":
		cmdTexture(args)
	case "unwrap":
		cmdUnwrap(args)
	case "info":
		cmdInfo(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshtex - multi-view mesh texturing

Usage:
  meshtex <command> [options] <args>

Commands:
  texture <scene.yaml> <mesh> [mesh.vis]  Full pipeline: unwrap, pack, paint, save
  unwrap <scene.yaml> <mesh> [mesh.vis]   Unwrap and pack only, print the layout
  info <mesh> [mesh.vis]                  Show mesh and visibility statistics

The mesh is a binary reconstruction payload with a companion
visibility file, or an OBJ file (no visibility).

Options:
  -o dir          Output directory (default ".")
  -name base      Output basename (default "textured")
  -flip           Flip face winding for OBJ input
  -config path    Config file (default ./meshtex.yaml)
  -method m       Unwrap method: basic, abf or lscm
  -side n         Atlas resolution in pixels
  -padding n      Chart border dilation in pixels
  -downscale n    Internal supersampling factor
  -fill-holes     Inpaint unpainted pixels
  -format f       Atlas image format: png, jpeg or bmp
  -cache-size n   Max resident decoded photographs
  -workers n      Painting worker count
  -debug          Enable debug logging

Examples:
  meshtex texture scene.yaml mesh.bin mesh.vis -o out -side 4096
  meshtex texture scene.yaml scan.obj -flip -method lscm
  meshtex info mesh.bin mesh.vis`)
}

// splitArgs separates positional arguments from flags, parsing each
// flag group into the global flag set. Both documented orders work:
// positionals followed by flags, or flags interleaved anywhere.
func splitArgs(args []string) []string {
	var pos []string
	rest := args
	for len(rest) > 0 {
		if !strings.HasPrefix(rest[0], "-") {
			pos = append(pos, rest[0])
			rest = rest[1:]
			continue
		}
		config.ParseFlags(rest)
		next := flag.CommandLine.Args()
		if len(next) == len(rest) {
			// Parser made no progress (bare "-"): positional
			pos = append(pos, rest[0])
			rest = rest[1:]
			continue
		}
		rest = next
	}
	return pos
}

// setup parses flags, loads config and brings up logging.
func setup(args []string) (*config.Config, []string) {
	pos := splitArgs(args)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg, pos
}

// loadPipeline builds a Texturing run with the mesh named by the
// positional arguments loaded.
func loadPipeline(cfg *config.Config, meshArgs []string) (*texturing.Texturing, error) {
	tx, err := texturing.New(cfg)
	if err != nil {
		return nil, err
	}
	meshPath := meshArgs[0]
	if strings.HasSuffix(strings.ToLower(meshPath), ".obj") {
		return tx, tx.LoadOBJ(meshPath, *flagFlip)
	}
	if len(meshArgs) < 2 {
		return nil, fmt.Errorf("binary mesh %s needs a visibility file", meshPath)
	}
	return tx, tx.LoadFromReconstruction(meshPath, meshArgs[1])
}

func cmdTexture(args []string) {
	cfg, rest := setup(args)
	defer logger.Sync()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: meshtex texture <scene.yaml> <mesh> [mesh.vis]")
		os.Exit(1)
	}

	views, err := scene.Load(rest[0])
	if err != nil {
		fatal(err)
	}
	tx, err := loadPipeline(cfg, rest[1:])
	if err != nil {
		fatal(err)
	}
	if err := tx.Unwrap(views); err != nil {
		fatal(err)
	}
	if err := tx.Pack(); err != nil {
		fatal(err)
	}
	if err := tx.Paint(views); err != nil {
		fatal(err)
	}
	if err := tx.Save(*flagOut, *flagName); err != nil {
		fatal(err)
	}

	stats := tx.Stats()
	fmt.Printf("Textured %d triangles into %d atlas(es)\n",
		len(tx.Mesh().Triangles), tx.AtlasCount())
	fmt.Printf("Painted pixels: %d\n", stats.PaintedPixels)
	if stats.Degraded() {
		fmt.Printf("Quality warnings: %d unpainted triangles, %d missing views, %d shrunk charts, %d failed atlases\n",
			stats.UnpaintedTris, stats.MissingViews, stats.ShrunkCharts, len(stats.AtlasErrors))
	}
}

func cmdUnwrap(args []string) {
	cfg, rest := setup(args)
	defer logger.Sync()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: meshtex unwrap <scene.yaml> <mesh> [mesh.vis]")
		os.Exit(1)
	}

	views, err := scene.Load(rest[0])
	if err != nil {
		fatal(err)
	}
	tx, err := loadPipeline(cfg, rest[1:])
	if err != nil {
		fatal(err)
	}
	if err := tx.Unwrap(views); err != nil {
		fatal(err)
	}
	if err := tx.Pack(); err != nil {
		fatal(err)
	}

	fmt.Printf("Mesh:    %d vertices, %d triangles\n",
		len(tx.Mesh().Vertices), len(tx.Mesh().Triangles))
	fmt.Printf("Atlases: %d x %dpx (method %s)\n",
		tx.AtlasCount(), cfg.Texture.Side, cfg.Texture.Method)
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtex info <mesh> [mesh.vis]")
		os.Exit(1)
	}

	meshPath := args[0]
	if strings.HasSuffix(strings.ToLower(meshPath), ".obj") {
		obj, err := formats.ParseOBJFile(meshPath, false)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Mesh:      %s (OBJ)\n", meshPath)
		fmt.Printf("Vertices:  %d\n", len(obj.Positions))
		fmt.Printf("Faces:     %d\n", len(obj.Faces))
		fmt.Printf("TexCoords: %d\n", len(obj.TexCoords))
		fmt.Printf("Normals:   %d\n", len(obj.Normals))
		fmt.Printf("Materials: %d\n", len(obj.Materials))
		return
	}

	mb, err := formats.ParseMeshFile(meshPath)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Mesh:      %s (binary v%s)\n", meshPath, mb.Version)
	fmt.Printf("Vertices:  %d\n", len(mb.Vertices))
	fmt.Printf("Triangles: %d\n", len(mb.Triangles))

	if len(args) > 1 {
		vb, err := formats.ParseVisibilityFile(args[1])
		if err != nil {
			fatal(err)
		}
		if len(vb.Views) == 0 {
			fmt.Println("Visibility: empty")
			return
		}
		var observed, total int
		for _, views := range vb.Views {
			total += len(views)
			if len(views) > 0 {
				observed++
			}
		}
		fmt.Printf("Visibility: %d/%d vertices observed, %.1f views/vertex\n",
			observed, len(vb.Views), float64(total)/float64(len(vb.Views)))
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
