// Package rootfs enumerates a directory tree into an ordered, symlink-safe
// map of path to file metadata.
package rootfs

import (
	"strings"

	"github.com/tidwall/btree"
)

// FileType is the set of entry kinds the scanner understands. Anything else
// (sockets, FIFOs, devices) is a special file, represented by the zero value.
type FileType int

const (
	// FileTypeUnsupported marks a socket, FIFO, or device node.
	FileTypeUnsupported FileType = iota
	FileTypeDirectory
	FileTypeFile
	FileTypeSymlink
)

func (t FileType) String() string {
	switch t {
	case FileTypeDirectory:
		return "directory"
	case FileTypeFile:
		return "file"
	case FileTypeSymlink:
		return "symlink"
	default:
		return "unsupported"
	}
}

// XattrPair is a single extended attribute, preserved in listing order.
type XattrPair struct {
	Name  string
	Value []byte
}

// FileInfo is the metadata the scanner records for one path.
type FileInfo struct {
	Type   FileType
	Mode   uint32
	Size   uint64
	UID    uint32
	GID    uint32
	Mtime  uint64
	Ino    uint64
	Nlink  uint64
	Xattrs []XattrPair
}

// Xattr returns the value of the named extended attribute, if present.
func (fi FileInfo) Xattr(name string) ([]byte, bool) {
	for _, x := range fi.Xattrs {
		if x.Name == name {
			return x.Value, true
		}
	}
	return nil, false
}

type entry struct {
	path string
	info FileInfo
}

// FileMap is an ordered path -> FileInfo mapping, ascending by path with "/"
// ordered before every other byte, so each directory's descendants directly
// follow it (depth-first order: "/a", "/a/x", "/a.d"). It backs
// every stage of the pipeline downstream of the scanner: the attribution
// engine splits it into per-component FileMaps, the tar writer streams one in
// path order to build a reproducible layer.
type FileMap struct {
	tree *btree.BTree
}

// NewFileMap returns an empty, ready-to-use FileMap.
func NewFileMap() *FileMap {
	less := func(a, b interface{}) bool {
		pa, pb := a.(entry).path, b.(entry).path
		for i := 0; i < len(pa) && i < len(pb); i++ {
			ca, cb := pa[i], pb[i]
			if ca == cb {
				continue
			}
			if ca == '/' {
				return true
			}
			if cb == '/' {
				return false
			}
			return ca < cb
		}
		return len(pa) < len(pb)
	}
	return &FileMap{tree: btree.New(less)}
}

// Set inserts or replaces the entry for path.
func (m *FileMap) Set(path string, info FileInfo) {
	m.tree.Set(entry{path: path, info: info})
}

// Get returns the FileInfo for path, if present.
func (m *FileMap) Get(path string) (FileInfo, bool) {
	v := m.tree.Get(entry{path: path})
	if v == nil {
		return FileInfo{}, false
	}
	return v.(entry).info, true
}

// Len returns the number of entries.
func (m *FileMap) Len() int {
	return m.tree.Len()
}

// Ascend calls fn for every entry in ascending path order, stopping early if
// fn returns false.
func (m *FileMap) Ascend(fn func(path string, info FileInfo) bool) {
	m.tree.Ascend(nil, func(v interface{}) bool {
		e := v.(entry)
		return fn(e.path, e.info)
	})
}

// Paths returns every path in ascending order. Mostly useful in tests.
func (m *FileMap) Paths() []string {
	out := make([]string, 0, m.Len())
	m.Ascend(func(path string, _ FileInfo) bool {
		out = append(out, path)
		return true
	})
	return out
}

// StripRoot removes a leading "/" from an absolute scanner path, the form tar
// entries want. The root path "/" itself becomes "".
func StripRoot(path string) string {
	return strings.TrimPrefix(path, "/")
}

// IsStrictAncestor reports whether dir is a strict ancestor directory of
// path (dir itself does not count).
func IsStrictAncestor(path, dir string) bool {
	return path != dir && strings.HasPrefix(path, dir+"/")
}
