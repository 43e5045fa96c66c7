package transport

import (
	"os"
	"path/filepath"
	"strconv"
)

// UniquifyPath returns a path under dir for basename that does not collide
// with an existing file, appending " (n)" before the extension as spec.md 6
// requires ("Persisted state"). The first candidate is the plain basename;
// collisions increment n starting at 1.
func UniquifyPath(dir, basename string) string {
	ext := filepath.Ext(basename)
	stem := basename[:len(basename)-len(ext)]

	candidate := filepath.Join(dir, basename)
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, stem+" ("+strconv.Itoa(n)+")"+ext)
	}
}
