// Package sidecar derives object keys for artifacts that live alongside a
// source document in the object store.
//
// The original document stays at its own key. Derived artifacts are stored
// next to it by postfixing the basename: the baked rendition as
// "name__baked.pdf" and the annotation set as "name__ann.json". When an owner
// is given, an owner suffix keeps per-reviewer artifacts from colliding:
// "name__baked_u42.pdf".
//
// Both functions are pure and total: no I/O, same inputs always produce the
// same key, and degenerate inputs fall back to constant default names.
package sidecar

import "strings"

const (
	// BakedPostfix is inserted before the extension of baked rendition keys.
	BakedPostfix = "__baked"
	// AnnotationsPostfix is inserted before the extension of annotation set keys.
	AnnotationsPostfix = "__ann"

	bakedExt       = ".pdf"
	annotationsExt = ".json"

	defaultBakedBase       = "baked"
	defaultAnnotationsBase = "annotations"
)

// DeriveBakedKey maps a source key to the key of its baked rendition.
//
//	"foo/bar/name.pdf", ""   -> "foo/bar/name__baked.pdf"
//	"foo/bar/name.pdf", "42" -> "foo/bar/name__baked_u42.pdf"
func DeriveBakedKey(sourceKey, owner string) string {
	key := strings.TrimSpace(sourceKey)
	if key == "" {
		return defaultBakedBase + BakedPostfix + ownerSuffix(owner) + bakedExt
	}

	dir, base := splitKey(key)
	if strings.HasSuffix(strings.ToLower(base), bakedExt) {
		base = base[:len(base)-len(bakedExt)]
	}
	if base == "" {
		base = defaultBakedBase
	}
	return joinKey(dir, base+BakedPostfix+ownerSuffix(owner)+bakedExt)
}

// DeriveAnnotationsKey maps a source key to the key of its annotation set.
//
//	"foo/bar/name.pdf", ""   -> "foo/bar/name__ann.json"
//	"foo/bar/name.pdf", "42" -> "foo/bar/name__ann_u42.json"
func DeriveAnnotationsKey(sourceKey, owner string) string {
	key := strings.TrimSpace(sourceKey)
	if key == "" {
		return defaultAnnotationsBase + AnnotationsPostfix + ownerSuffix(owner) + annotationsExt
	}

	dir, base := splitKey(key)
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		base = defaultAnnotationsBase
	}
	return joinKey(dir, base+AnnotationsPostfix+ownerSuffix(owner)+annotationsExt)
}

// CleanupPrefix returns the listing prefix that matches every derived
// artifact of a source key, for any owner.
//
//	"foo/bar/name.pdf" -> "foo/bar/name__"
func CleanupPrefix(sourceKey string) string {
	key := strings.TrimSpace(sourceKey)
	dir, base := splitKey(key)
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		base = defaultBakedBase
	}
	return joinKey(dir, base+"__")
}

func ownerSuffix(owner string) string {
	if owner == "" {
		return ""
	}
	return "_u" + owner
}

func splitKey(key string) (dir, base string) {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

func joinKey(dir, base string) string {
	if dir == "" {
		return base
	}
	return dir + "/" + base
}
