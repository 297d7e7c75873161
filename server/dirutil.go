package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sjqzhang/seelog"
)

// CreateDirChain creates every missing directory on the way to path.
func (c *Server) CreateDirChain(path string) error {
	if c.util.FileExists(path) {
		return nil
	}
	return os.MkdirAll(path, 0775)
}

// insideCacheRoot guards the destructive helpers: nothing outside the cache
// subtree may ever be removed through them.
func insideCacheRoot(path string) bool {
	root, err := filepath.Abs(CACHE_DIR)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return abs != root && strings.HasPrefix(abs, root+string(os.PathSeparator))
}

// RemoveDirTree deletes a directory with everything below it. Paths outside
// the cache root are refused.
func (c *Server) RemoveDirTree(path string) error {
	if !insideCacheRoot(path) {
		return fmt.Errorf("refuse to remove %s: outside cache root", path)
	}
	return os.RemoveAll(path)
}

// PruneEmptyDirs removes path when empty, then walks up removing each empty
// parent until it reaches the cache root, which always stays in place.
func (c *Server) PruneEmptyDirs(path string) {
	for insideCacheRoot(path) {
		entries, err := os.ReadDir(path)
		if err != nil || len(entries) > 0 {
			return
		}
		if err = os.Remove(path); err != nil {
			return
		}
		path = filepath.Dir(path)
	}
}

// CleanDirRecursive removes every regular file under dir whose modification
// time is older than maxAge seconds, drops the sidecar along with its data
// file, and prunes directories left empty. Returns the number of data files
// removed.
func (c *Server) CleanDirRecursive(dir string, maxAge int64) int {
	var (
		removed int
		dirs    []string
		cutoff  = time.Now().Add(-time.Duration(maxAge) * time.Second)
	)
	if !c.util.FileExists(dir) {
		return 0
	}
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn(fmt.Sprintf("clean walk %s error: %v", path, err))
			return nil
		}
		if info.IsDir() {
			if path != dir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if IsDescriptionFile(info.Name()) {
			// removed together with its data file, or as an
			// orphan once the data file is gone
			dataFile := strings.TrimSuffix(path, CONST_DESCRIPTION_SUFFIX)
			if !c.util.FileExists(dataFile) {
				os.Remove(path)
			}
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err = os.Remove(path); err != nil {
				log.Error(fmt.Sprintf("clean remove %s error: %v", path, err))
				return nil
			}
			os.Remove(DescriptionPath(path))
			removed++
		}
		return nil
	})
	// deepest first so an emptied chain collapses in one pass
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			os.Remove(dirs[i])
		}
	}
	return removed
}
