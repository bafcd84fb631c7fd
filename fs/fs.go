package fs

import (
	"io"
)

// File is a file opened for writing.
type File interface {
	io.WriteCloser
	Sync() error
}

// ReadFile is a file opened for reading.
type ReadFile interface {
	Size() int
	io.ReadCloser
}

// Stats counts the IO issued through a Filesys.
type Stats struct {
	ReadOps    int
	ReadBytes  int
	WriteOps   int
	WriteBytes int
}

// Filesys is the persistence layer's API for accessing the file system.
//
// Note that an instance of this interface only exposes a single directory
// (there are no directory names in these methods).
//
// IO errors panic. Callers are expected to follow some rules when calling
// this API:
// - Open, ReadAll, Truncate, Delete: fname should exist
// - Rename: src should exist; dst is replaced
type Filesys interface {
	Open(fname string) ReadFile
	ReadAll(fname string) []byte
	// Create creates fname, truncating it if it exists.
	Create(fname string) File
	Exists(fname string) bool
	List() []string
	Delete(fname string)
	Rename(src, dst string)
	Truncate(fname string)
	// AtomicCreateWith replaces fname with data such that a crash leaves
	// either the old or the new contents.
	AtomicCreateWith(fname string, data []byte)
	GetStats() Stats
}

// DeleteAll removes every file in fs.
func DeleteAll(fs Filesys) {
	for _, n := range fs.List() {
		fs.Delete(n)
	}
}
