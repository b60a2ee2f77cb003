package conf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ConfigSource orchestrates loading configuration from multiple sources.
// See the Open method.
type ConfigSource struct {
	// Path is the configuration file, or the directory holding it.
	Path string
	// ConfigName is the file name used when a location is a directory.
	// Defaults to DefaultConfigName.
	ConfigName string
	// Inherited locations are merged onto the main file in order, so later
	// entries win.
	Inherited []string
	// DropInDir holds additional *.yml, *.yaml and *.toml files merged after
	// Inherited, in lexicographic order. A missing directory is ignored.
	DropInDir string

	// StampRevision records the source revision under RevisionField.
	StampRevision bool
	// OverwriteRevision replaces an existing RevisionField when stamping.
	OverwriteRevision bool
	// Revision looks up the source revision. Defaults to GitRevision("").
	Revision RevisionFunc

	// Persist writes the resulting configuration back to Path.
	Persist bool
}

// Store holds a configuration tree bound to a file. It is not safe for
// concurrent use.
type Store struct {
	path       string
	configName string
	config     *Mapping
	revision   RevisionFunc
}

// Open builds a Store by applying, in order:
//  1. The main configuration file (missing file means empty configuration)
//  2. Every Inherited location
//  3. Drop-in files
//
// and then stamps and persists it if requested.
func (cs *ConfigSource) Open() (*Store, error) {
	configName := cs.ConfigName
	if configName == "" {
		configName = DefaultConfigName
	}
	path, err := ResolveLocation(cs.Path, configName)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:       path,
		configName: configName,
		config:     NewMapping(),
		revision:   cs.Revision,
	}
	if s.revision == nil {
		s.revision = GitRevision("")
	}

	// Load main configuration file
	v, err := Load(path)
	switch {
	case errors.Is(err, ErrNotFound):
		slog.Debug("no configuration file, starting empty", "path", path)
	case err != nil:
		// Existing but malformed file should result in failure.
		slog.Error("failed to load configuration", "error", err, "path", path)
		return nil, err
	default:
		s.config = Resolve(v).m
	}

	for _, location := range cs.Inherited {
		if err := s.MergeFrom(location); err != nil {
			return nil, err
		}
	}

	dropIns, err := cs.findDropInFiles()
	if err != nil {
		slog.Error("failed to list drop-in files", "error", err, "dir", cs.DropInDir)
		return nil, err
	}
	for _, dropIn := range dropIns {
		if err := s.mergeFile(dropIn); err != nil {
			return nil, err
		}
	}

	if cs.StampRevision {
		s.StampRevision(cs.OverwriteRevision)
	}
	if cs.Persist {
		if _, err := s.Persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load reads and parses the configuration file at path. The format is taken
// from the file extension.
func Load(path string) (Value, error) {
	format, ok := FormatOf(path)
	if !ok {
		return Value{}, fmt.Errorf("%w: unrecognized config file extension: %s", ErrInvalidLocation, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Value{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Value{}, fmt.Errorf("failed to load %s: %w", path, err)
	}

	v, err := Decode(format, data)
	if err != nil {
		return Value{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return v, nil
}

// MergeFrom loads location and merges it onto the configuration, with the
// loaded document taking priority. A directory location is resolved with the
// store's ConfigName, not DefaultConfigName.
func (s *Store) MergeFrom(location string) error {
	path, err := ResolveLocation(location, s.configName)
	if err != nil {
		return err
	}
	return s.mergeFile(path)
}

func (s *Store) mergeFile(path string) error {
	overlay, err := Load(path)
	if err != nil {
		return err
	}
	s.config = Merge(Map(s.config), overlay).m
	slog.Debug("merged configuration", "path", path)
	return nil
}

// Persist writes the configuration to the bound path.
func (s *Store) Persist() (*Store, error) {
	return s, s.write(s.path)
}

// PersistTo writes the configuration to location instead of the bound path.
// The bound path is left unchanged. A directory location is resolved with the
// store's ConfigName, not DefaultConfigName.
func (s *Store) PersistTo(location string) (*Store, error) {
	path, err := ResolveLocation(location, s.configName)
	if err != nil {
		return s, err
	}
	return s, s.write(path)
}

// write replaces path atomically: the document goes to a temporary file in
// the same directory which is then renamed over path. An existing file keeps
// its permissions; a new one is created with mode 0644.
func (s *Store) write(path string) error {
	format, _ := FormatOf(path)
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	data, err := Encode(format, Map(s.config))
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	slog.Debug("persisted configuration", "path", path)
	return nil
}

// Get returns the value at a slash-separated path, or def if any segment is
// missing. Mappings and sequences are returned as map[string]any and []any
// copies.
func (s *Store) Get(path string, def any) any {
	v, _, ok := s.lookup(path)
	if !ok {
		return def
	}
	return v.Interface()
}

// Lookup is like Get but fails with ErrMissingKey when a segment is missing.
func (s *Store) Lookup(path string) (any, error) {
	v, missing, ok := s.lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %q", ErrMissingKey, missing, path)
	}
	return v.Interface(), nil
}

// lookup descends the configuration. When a segment cannot be resolved it
// returns that segment. A segment below a non-mapping value is missing.
func (s *Store) lookup(path string) (Value, string, bool) {
	segments := strings.Split(path, "/")
	m := s.config
	for i, segment := range segments {
		v, ok := m.Get(segment)
		if !ok {
			return Value{}, segment, false
		}
		if i == len(segments)-1 {
			return v, "", true
		}
		if !v.IsMapping() {
			return Value{}, segments[i+1], false
		}
		m = v.m
	}
	return Value{}, path, false
}

// Set stores a copy of value at a slash-separated path, creating
// intermediate mappings as needed. An intermediate value that is not a
// mapping is replaced by one.
func (s *Store) Set(path string, value any) *Store {
	segments := strings.Split(path, "/")
	m := s.config
	for _, segment := range segments[:len(segments)-1] {
		v, ok := m.Get(segment)
		if !ok || !v.IsMapping() {
			v = Map(nil)
			m.Set(segment, v)
		}
		m = v.m
	}
	m.Set(segments[len(segments)-1], Resolve(ValueOf(value)))
	return s
}

// StampRevision records the current source revision under RevisionField,
// or NoRevision if it cannot be determined. An existing non-null value is
// kept unless overwrite is set.
func (s *Store) StampRevision(overwrite bool) *Store {
	if !overwrite && s.Get(RevisionField, nil) != nil {
		return s
	}

	rev, err := s.revision()
	if err != nil {
		slog.Debug("falling back to placeholder revision", "error", err)
		rev = NoRevision
	}
	return s.Set(RevisionField, rev)
}

// Path returns the file the store is bound to.
func (s *Store) Path() string {
	return s.path
}

// Value returns a copy of the configuration tree.
func (s *Store) Value() Value {
	return Map(s.config.Clone())
}

// Map returns the configuration as plain Go values.
func (s *Store) Map() map[string]any {
	return Map(s.config).Interface().(map[string]any)
}

// findDropInFiles returns sorted paths to drop-in configuration files.
// Returns nil if the drop-in directory is unset or doesn't exist.
func (cs *ConfigSource) findDropInFiles() ([]string, error) {
	if cs.DropInDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(cs.DropInDir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(cs.DropInDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read drop-in directory %s: %w", cs.DropInDir, err)
	}

	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatOf(entry.Name()); ok {
			filenames = append(filenames, filepath.Join(cs.DropInDir, entry.Name()))
		}
	}
	sort.Strings(filenames)

	return filenames, nil
}
