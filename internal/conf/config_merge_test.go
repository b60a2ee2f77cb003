package conf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestInheritedConfigs tests that an inherited file only patches the keys it
// names and leaves the rest of the main config alone.
func TestInheritedConfigs(t *testing.T) {
	store, tmpDir := someStore(t)

	subDir := filepath.Join(tmpDir, "sub_folder")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("failed to create sub folder: %v", err)
	}
	inherited := filepath.Join(subDir, "config.yml")
	writeFile(t, inherited, strings.Replace(someConfig, "  key1: 3\n  key2: 4\n", "  key2: 8\n  key3: 4\n", 1))

	merged, err := (&ConfigSource{Path: store.Path(), Inherited: []string{inherited}}).Open()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{"key1": 3, "key2": 8, "key3": 4}
	if diff := cmp.Diff(want, merged.Get("subdict", nil)); diff != "" {
		t.Errorf("subdict mismatch (-want +got):\n%s", diff)
	}
}

// TestInheritedPriority tests that later inherited locations win over
// earlier ones, and directories resolve to the configured file name.
func TestInheritedPriority(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.yml"), "model: cyto\nepochs: 10\n")

	first := t.TempDir()
	writeFile(t, filepath.Join(first, "config.yml"), "epochs: 20\nlr: 0.1\n")
	second := filepath.Join(t.TempDir(), "second.yaml")
	writeFile(t, second, "epochs: 30\n")

	store, err := (&ConfigSource{Path: tmpDir, Inherited: []string{first, second}}).Open()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{"model": "cyto", "epochs": 30, "lr": 0.1}
	if diff := cmp.Diff(want, store.Map()); diff != "" {
		t.Errorf("configuration mismatch (-want +got):\n%s", diff)
	}
}

// TestDropInFiles tests that drop-in files apply after inherited locations,
// in lexicographic order, skipping unrecognized files.
func TestDropInFiles(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.yml"), "model: cyto\nepochs: 10\ndiameter: 30\n")
	inherited := filepath.Join(tmpDir, "inherited.yml")
	writeFile(t, inherited, "epochs: 15\nlr: 0.1\n")

	dropInDir := filepath.Join(tmpDir, "config.yml.d")
	if err := os.Mkdir(dropInDir, 0755); err != nil {
		t.Fatalf("failed to create drop-in directory: %v", err)
	}
	dropInFiles := map[string]string{
		"10-epochs.yml":  "epochs: 20\n",
		"20-epochs.toml": "epochs = 25\n",
		"30-lr.yaml":     "lr: 0.2\ndiameter: !Del\n",
		"40-ignored.txt": "epochs: 99\n",
	}
	for filename, content := range dropInFiles {
		writeFile(t, filepath.Join(dropInDir, filename), content)
	}

	store, err := (&ConfigSource{Path: tmpDir, Inherited: []string{inherited}, DropInDir: dropInDir}).Open()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{"model": "cyto", "epochs": 25, "lr": 0.2}
	if diff := cmp.Diff(want, store.Map()); diff != "" {
		t.Errorf("configuration mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingDropInDir(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.yml"), "epochs: 10\n")

	store, err := (&ConfigSource{Path: tmpDir, DropInDir: filepath.Join(tmpDir, "config.yml.d")}).Open()
	if err != nil {
		t.Fatalf("unexpected error when drop-in dir missing: %v", err)
	}
	if got := store.Get("epochs", nil); got != 10 {
		t.Errorf("epochs = %v, want 10", got)
	}
}

// TestMergeFromMarkers tests that merge directives take effect and that
// only their effects reach the file on disk.
func TestMergeFromMarkers(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.yml"), "segmentation:\n  model: cyto\n  diameter: 30\nchannels: [0, 1]\nkeep: yes\n")
	overlay := filepath.Join(tmpDir, "overlay.yml")
	writeFile(t, overlay, "segmentation: !Override\n  model: nuclei\nchannels: !Del\n")

	store, err := (&ConfigSource{Path: tmpDir}).Open()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.MergeFrom(overlay); err != nil {
		t.Fatalf("MergeFrom: %v", err)
	}
	if _, err := store.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	want := map[string]any{
		"segmentation": map[string]any{"model": "nuclei"},
		"keep":         "yes",
	}
	if diff := cmp.Diff(want, store.Map()); diff != "" {
		t.Errorf("configuration mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, tag := range []string{"!Override", "!Del", "channels"} {
		if strings.Contains(string(data), tag) {
			t.Errorf("persisted file contains %q:\n%s", tag, data)
		}
	}
}

func TestMergeFromMissing(t *testing.T) {
	store, tmpDir := someStore(t)
	before := store.Map()

	err := store.MergeFrom(filepath.Join(tmpDir, "absent.yml"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MergeFrom() error = %v, want %v", err, ErrNotFound)
	}
	if diff := cmp.Diff(before, store.Map()); diff != "" {
		t.Errorf("failed merge changed configuration (-before +after):\n%s", diff)
	}
}

// TestEmptyOverlayValues tests that an overlay can set values to empty
// strings and nulls rather than having them ignored.
func TestEmptyOverlayValues(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.yml"), "cert_file: /etc/cert.pem\nca_dir: /etc/pki\n")
	overlay := filepath.Join(tmpDir, "overlay.yml")
	writeFile(t, overlay, "cert_file: \"\"\nca_dir: null\n")

	store, err := (&ConfigSource{Path: tmpDir, Inherited: []string{overlay}}).Open()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{"cert_file": "", "ca_dir": nil}
	if diff := cmp.Diff(want, store.Map()); diff != "" {
		t.Errorf("configuration mismatch (-want +got):\n%s", diff)
	}
}
