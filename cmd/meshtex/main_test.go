package main

import (
	"reflect"
	"testing"
)

func TestSplitArgsAcceptsTrailingFlags(t *testing.T) {
	pos := splitArgs([]string{"scene.yaml", "mesh.bin", "mesh.vis", "-o", "out", "-name", "result"})
	want := []string{"scene.yaml", "mesh.bin", "mesh.vis"}
	if !reflect.DeepEqual(pos, want) {
		t.Errorf("positionals = %v, want %v", pos, want)
	}
	if *flagOut != "out" {
		t.Errorf("-o = %q, want %q", *flagOut, "out")
	}
	if *flagName != "result" {
		t.Errorf("-name = %q, want %q", *flagName, "result")
	}
}

func TestSplitArgsAcceptsInterleavedFlags(t *testing.T) {
	pos := splitArgs([]string{"-flip", "scene.yaml", "-o", "dir", "scan.obj"})
	want := []string{"scene.yaml", "scan.obj"}
	if !reflect.DeepEqual(pos, want) {
		t.Errorf("positionals = %v, want %v", pos, want)
	}
	if !*flagFlip {
		t.Error("-flip not parsed")
	}
	if *flagOut != "dir" {
		t.Errorf("-o = %q, want %q", *flagOut, "dir")
	}
}
