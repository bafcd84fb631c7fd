package fs

import (
	"fmt"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

func (s *statsCounter) readOp(bytes int) {
	s.mu.Lock()
	s.ReadOps++
	s.ReadBytes += bytes
	s.mu.Unlock()
}

func (s *statsCounter) writeOp(bytes int) {
	s.mu.Lock()
	s.WriteOps++
	s.WriteBytes += bytes
	s.mu.Unlock()
}

type aferoFs struct {
	fs    afero.Afero
	stats *statsCounter
}

// statsCounter guards Stats, since the persistence writer and snapshots run
// concurrently.
type statsCounter struct {
	mu sync.Mutex
	Stats
}

type readFile struct {
	afero.File
	stats *statsCounter
}

func (f readFile) Size() int {
	st, err := f.Stat()
	if err != nil {
		panic(err)
	}
	return int(st.Size())
}

func (f readFile) Read(buf []byte) (int, error) {
	n, err := f.File.Read(buf)
	f.stats.readOp(n)
	return n, err
}

func abs(fname string) string {
	return fmt.Sprintf("/%s", fname)
}

func (fs aferoFs) Open(fname string) ReadFile {
	f, err := fs.fs.Open(abs(fname))
	if err != nil {
		panic(err)
	}
	return readFile{f, fs.stats}
}

func (fs aferoFs) ReadAll(fname string) []byte {
	data, err := fs.fs.ReadFile(abs(fname))
	if err != nil {
		panic(err)
	}
	fs.stats.readOp(len(data))
	return data
}

type writeFile struct {
	afero.File
	stats *statsCounter
}

func (f writeFile) Write(p []byte) (n int, err error) {
	n, err = f.File.Write(p)
	f.stats.writeOp(n)
	return n, err
}

func (fs aferoFs) Create(fname string) File {
	f, err := fs.fs.Create(abs(fname))
	if err != nil {
		panic(err)
	}
	return writeFile{f, fs.stats}
}

func (fs aferoFs) Exists(fname string) bool {
	ok, err := fs.fs.Exists(abs(fname))
	if err != nil {
		panic(err)
	}
	return ok
}

func (fs aferoFs) List() []string {
	paths, err := afero.Glob(fs.fs, abs("*"))
	if err != nil {
		panic(err)
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, path.Base(p))
	}
	sort.Strings(names)
	return names
}

func (fs aferoFs) Delete(fname string) {
	err := fs.fs.Remove(abs(fname))
	if err != nil {
		panic(err)
	}
}

func (fs aferoFs) Rename(src, dst string) {
	err := fs.fs.Rename(abs(src), abs(dst))
	if err != nil {
		panic(err)
	}
}

func (fs aferoFs) Truncate(fname string) {
	f, err := fs.fs.OpenFile(abs(fname), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		panic(err)
	}
	err = f.Close()
	if err != nil {
		panic(err)
	}
}

func (fs aferoFs) AtomicCreateWith(fname string, data []byte) {
	tmpFile := abs(fmt.Sprintf("%s.tmp", fname))
	f, err := fs.fs.Create(tmpFile)
	if err != nil {
		panic(err)
	}
	if _, err := f.Write(data); err != nil {
		panic(err)
	}
	fs.stats.writeOp(len(data))
	if err := f.Sync(); err != nil {
		panic(err)
	}
	if err := f.Close(); err != nil {
		panic(err)
	}
	err = fs.fs.Rename(tmpFile, abs(fname))
	if err != nil {
		panic(err)
	}
}

func (fs aferoFs) GetStats() Stats {
	fs.stats.mu.Lock()
	defer fs.stats.mu.Unlock()
	return fs.stats.Stats
}

func deleteTmpFiles(fs afero.Fs) {
	tmpFiles, err := afero.Glob(fs, abs("*.tmp"))
	if err != nil {
		panic(err)
	}
	for _, n := range tmpFiles {
		err = fs.Remove(n)
		if err != nil {
			panic(err)
		}
	}
}

// FromAfero creates an fs.Filesys from any Afero file system.
//
// This implementation will use absolute filenames for the data files; use
// an afero.BasePathFs to make sure all files are created within a particular
// directory.
//
// Deletes all files named *.tmp, as a file-system recovery for AtomicCreateWith.
func FromAfero(fs afero.Fs) Filesys {
	deleteTmpFiles(fs)
	return aferoFs{fs: afero.Afero{Fs: fs}, stats: new(statsCounter)}
}

// MemFs creates an in-memory Filesys
func MemFs() Filesys {
	fs := afero.NewMemMapFs()
	return FromAfero(fs)
}

// DirFs creates a Filesys backed by the OS, using basedir.
//
// Creates basedir if it does not exist.
func DirFs(basedir string) Filesys {
	fs := afero.NewOsFs()
	err := fs.MkdirAll(basedir, 0755)
	if err != nil {
		panic(err)
	}
	baseFs := afero.NewBasePathFs(fs, basedir)
	return FromAfero(baseFs)
}
