package sidecar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveBakedKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		owner  string
		want   string
	}{
		{"plain", "foo/bar/name.pdf", "", "foo/bar/name__baked.pdf"},
		{"with owner", "foo/bar/name.pdf", "42", "foo/bar/name__baked_u42.pdf"},
		{"uppercase extension", "foo/NAME.PDF", "", "foo/NAME__baked.pdf"},
		{"no directory", "name.pdf", "", "name__baked.pdf"},
		{"no extension", "foo/readme", "", "foo/readme__baked.pdf"},
		{"empty key", "", "", "baked__baked.pdf"},
		{"empty key with owner", "", "7", "baked__baked_u7.pdf"},
		{"whitespace key", "   ", "", "baked__baked.pdf"},
		{"trailing slash", "foo/bar/", "", "foo/bar/baked__baked.pdf"},
		{"deep prefix kept", "a/b/c/d/file.pdf", "9", "a/b/c/d/file__baked_u9.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DeriveBakedKey(tt.source, tt.owner))
		})
	}
}

func TestDeriveAnnotationsKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		owner  string
		want   string
	}{
		{"plain", "foo/bar/name.pdf", "", "foo/bar/name__ann.json"},
		{"with owner", "foo/bar/name.pdf", "42", "foo/bar/name__ann_u42.json"},
		{"strips any extension", "foo/scan.tiff", "", "foo/scan__ann.json"},
		{"no extension", "foo/readme", "", "foo/readme__ann.json"},
		{"empty key", "", "", "annotations__ann.json"},
		{"trailing slash", "foo/", "3", "foo/annotations__ann_u3.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DeriveAnnotationsKey(tt.source, tt.owner))
		})
	}
}

func TestCleanupPrefixCoversAllDerivedKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"plain", "foo/bar/name.pdf", "foo/bar/name__"},
		{"no directory", "scan.pdf", "scan__"},
		{"no extension", "foo/readme", "foo/readme__"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prefix := CleanupPrefix(tt.source)
			assert.Equal(t, tt.want, prefix)

			for _, owner := range []string{"", "7", "123"} {
				assert.True(t, strings.HasPrefix(DeriveBakedKey(tt.source, owner), prefix))
				assert.True(t, strings.HasPrefix(DeriveAnnotationsKey(tt.source, owner), prefix))
			}
		})
	}
}

// Distinct owners over the same source must never collide, and repeated calls
// must be stable.
func TestDerivedKeysInjectiveAndDeterministic(t *testing.T) {
	t.Parallel()

	source := "projects/12/abcdef.pdf"
	owners := []string{"", "1", "2", "41", "412"}

	seen := map[string]string{}
	for _, owner := range owners {
		baked := DeriveBakedKey(source, owner)
		ann := DeriveAnnotationsKey(source, owner)

		assert.Equal(t, baked, DeriveBakedKey(source, owner))
		assert.Equal(t, ann, DeriveAnnotationsKey(source, owner))

		for _, key := range []string{baked, ann} {
			if prev, dup := seen[key]; dup {
				t.Fatalf("key %q derived for both owner %q and owner %q", key, prev, owner)
			}
			seen[key] = owner
		}
	}
}

// A baked key must never equal an annotations key for any input.
func TestBakedAndAnnotationKeysDisjoint(t *testing.T) {
	t.Parallel()

	sources := []string{"", "a.pdf", "x/y/z.pdf", "x/"}
	for _, s := range sources {
		assert.NotEqual(t, DeriveBakedKey(s, "1"), DeriveAnnotationsKey(s, "1"))
	}
}
