package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/pig/compressor"
	"github.com/chazu/pig/manifest"
	"github.com/chazu/pig/store"
)

const encodingTOML = `
[[move-slot]]
bus = "B1"
position = 0

[move-slot.destination]
position = 0

[move-slot.destination.nop]
encoding = 0
width = 8
`

const programTOML = `
name = "main"

[[instruction]]
fields = { B1 = 1 }

[[instruction]]
fields = { B1 = 2 }

[[instruction]]
fields = { B1 = 1 }

[[data]]
address-space = "data"
start = 1
values = [3]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func testJob(t *testing.T) *job {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "machine.toml"), encodingTOML)
	writeFile(t, filepath.Join(dir, "main.toml"), programTOML)

	j, err := newJob(nil)
	if err != nil {
		t.Fatal(err)
	}
	j.encodingPath = filepath.Join(dir, "machine.toml")
	j.programPaths = []string{filepath.Join(dir, "main.toml")}
	j.output = filepath.Join(dir, "out")
	j.format = "ascii"
	return j
}

func TestRunIdentity(t *testing.T) {
	j := testJob(t)
	written, err := j.run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(written) != 4 {
		t.Fatalf("written = %v, want program, data, decompressor and MAU package", written)
	}

	if got, want := readFile(t, filepath.Join(j.output, "main.img")), "00000001\n00000010\n00000001"; got != want {
		t.Errorf("program image = %q, want %q", got, want)
	}
	if got, want := readFile(t, filepath.Join(j.output, "main_data.img")), "00000000\n00000011"; got != want {
		t.Errorf("data image = %q, want %q", got, want)
	}
	if got := readFile(t, filepath.Join(j.output, "tta0_decompressor.vhdl")); !strings.Contains(got, "entity tta0_decompressor is") {
		t.Errorf("decompressor lacks the entity:\n%s", got)
	}
	if got := readFile(t, filepath.Join(j.output, "tta0_imem_mau_pkg.vhdl")); !strings.Contains(got, "constant IMEMMAUWIDTH : positive := 8;") {
		t.Errorf("MAU package does not carry the instruction width:\n%s", got)
	}
}

func TestRunErrors(t *testing.T) {
	j := testJob(t)
	j.encodingPath = ""
	if _, err := j.run(); err == nil {
		t.Error("run without an encoding succeeded")
	}

	j = testJob(t)
	j.programPaths = nil
	if _, err := j.run(); err == nil {
		t.Error("run without programs succeeded")
	}

	j = testJob(t)
	j.reuseDictionary = true
	if _, err := j.run(); err == nil {
		t.Error("-reuse-dictionary without a store succeeded")
	}
}

func TestRunReusesDictionary(t *testing.T) {
	j := testJob(t)
	j.compressor = "instruction_dictionary"
	j.storePath = filepath.Join(t.TempDir(), "store.db")
	j.reuseDictionary = true
	if _, err := j.run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := readFile(t, filepath.Join(j.output, "main.img"))
	if first != "0\n1\n0" {
		t.Errorf("compressed image = %q, want 0 1 0", first)
	}
	if got := readFile(t, filepath.Join(j.output, "tta0_imem_mau_pkg.vhdl")); !strings.Contains(got, "IMEMMAUWIDTH : positive := 1;") {
		t.Errorf("MAU package does not carry the compressed width:\n%s", got)
	}

	st, err := store.Open(j.storePath)
	if err != nil {
		t.Fatal(err)
	}
	images, err := st.Images("main")
	st.Close()
	if err != nil || len(images) != 1 || images[0].Compressor != "instruction_dictionary" {
		t.Errorf("stored images = %+v, %v", images, err)
	}

	if _, err := j.run(); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := readFile(t, filepath.Join(j.output, "main.img")); got != first {
		t.Errorf("restored run image = %q, want %q", got, first)
	}
}

func TestNewJobFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, manifest.FileName), `
[machine]
encoding = "machine.toml"

[[program]]
path = "main.toml"

[image]
format = "hex"

[compressor]
name = "instruction_dictionary"
ensure-programmability = true
`)
	writeFile(t, filepath.Join(dir, "machine.toml"), encodingTOML)
	writeFile(t, filepath.Join(dir, "main.toml"), programTOML)

	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	j, err := newJob(m)
	if err != nil {
		t.Fatal(err)
	}
	if j.format != "hex" || j.compressor != "instruction_dictionary" || len(j.programs) != 1 {
		t.Errorf("job = %+v", j)
	}
	if j.parameters[compressor.ParamEnsureProgrammability] != "yes" {
		t.Errorf("parameters = %v", j.parameters)
	}
	if j.storePath != filepath.Join(m.Dir, ".pig", "store.db") {
		t.Errorf("store path = %q", j.storePath)
	}
}

func TestParseParameters(t *testing.T) {
	p, err := parseParameters("a=1, b = two,")
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 2 || p["a"] != "1" || p["b"] != "two" {
		t.Errorf("parseParameters = %v", p)
	}
	if _, err := parseParameters("novalue"); err == nil {
		t.Error("malformed parameter accepted")
	}
}
