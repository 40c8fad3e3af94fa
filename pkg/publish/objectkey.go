package publish

import "path"

// ObjectKeyFor computes the storage key for a matched file's
// object-relative name. With a prefix configured, only the basename
// survives and intermediate directories are discarded; without one,
// the full name is the key. Any prefix string is legal and is
// concatenated verbatim.
func ObjectKeyFor(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "/" + path.Base(name)
}
