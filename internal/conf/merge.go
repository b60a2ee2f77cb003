package conf

import "log/slog"

// LegacyDeleteSentinel is a plain string accepted as a deletion trigger in
// place of the !Del tag.
//
// Deprecated: use the !Del tag (or Delete()) instead. Each use is logged.
const LegacyDeleteSentinel = "KeyDeleter"

// Merge returns overlay merged onto base. Neither argument is modified.
//
// An override marker replaces base wholesale. Otherwise, for every key of
// the overlay mapping: a deletion marker removes the key, two mappings are
// merged recursively and anything else replaces the base value. Keys only
// present in base are kept. Key order is that of base followed by keys the
// overlay introduces.
//
// The result never contains markers.
func Merge(base, overlay Value) Value {
	switch {
	case overlay.kind == KindOverride:
		return Resolve(overlay)
	case overlay.kind != KindMapping, !base.IsMapping():
		return Resolve(overlay)
	}

	out := base.m.Clone()
	for _, key := range overlay.m.keys {
		value := overlay.m.values[key]
		if isDeletion(key, value) {
			out.Delete(key)
			continue
		}
		if existing, ok := out.Get(key); ok && existing.IsMapping() && value.IsMapping() {
			out.Set(key, Merge(existing, value))
			continue
		}
		out.Set(key, Resolve(value))
	}
	return Map(out)
}

// Resolve returns a copy of v with every marker turned into plain data:
// override markers become mappings, keys and sequence items holding a
// deletion marker are dropped and a bare deletion marker becomes null.
func Resolve(v Value) Value {
	switch v.kind {
	case KindMapping, KindOverride:
		out := NewMapping()
		for _, key := range v.m.keys {
			value := v.m.values[key]
			if isDeletion(key, value) {
				continue
			}
			out.Set(key, Resolve(value))
		}
		return Map(out)
	case KindSequence:
		items := make([]Value, 0, len(v.items))
		for _, item := range v.items {
			if item.kind == KindDelete {
				continue
			}
			items = append(items, Resolve(item))
		}
		return Seq(items...)
	case KindDelete:
		return Null()
	default:
		return v
	}
}

func isDeletion(key string, v Value) bool {
	if v.kind == KindDelete {
		return true
	}
	if s, ok := v.scalar.(string); ok && v.kind == KindScalar && s == LegacyDeleteSentinel {
		slog.Warn("deprecated deletion sentinel, use the !Del tag instead", "key", key)
		return true
	}
	return false
}
