// Package conf implements layered configuration files for paramctl.
//
// # Usage
//
// A Store is built from a ConfigSource:
//
//	cs := &conf.ConfigSource{
//	    Path:      "experiments/run1",      // directory or config file
//	    Inherited: []string{"defaults.yml"},
//	    Persist:   true,
//	}
//	store, err := cs.Open()
//	store.Get("training/epochs", 100)
//	store.Set("training/learning_rate", 0.1)
//	store.Persist()
//
// # Load Order
//
// Config is loaded and applied in three layers:
//
//  1. Main config file (a missing file is an empty configuration)
//  2. Inherited locations, in the order given
//  3. Drop-in files from DropInDir, in lexicographic order
//
// Each layer is merged onto the previous ones with Merge.
//
// # Merge Directives
//
// YAML documents can steer the merge with two tags:
//
//	segmentation: !Override   # replace the subtree instead of merging into it
//	  model: cyto2
//	channels: !Del            # remove the key
//
// The tags are resolved while merging and never written back to disk.
//
// # Internal Architecture
//
//   - Value: tagged union of mapping, sequence, scalar, override marker and
//     deletion marker.
//
//   - Merge and Resolve: pure functions over Values.
//
//   - Decode and Encode: YAML and TOML codecs, separate from file I/O.
//
//   - Store: owns the merged tree and the path it is bound to.
package conf
