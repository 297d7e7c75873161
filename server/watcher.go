package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/radovskyb/watcher"
	log "github.com/sjqzhang/seelog"
)

// isCachePath reports whether a path relative to the cache root has the
// shape side/actor/form/instance/field/bucket/file written by this process.
func isCachePath(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 7 {
		return false
	}
	if parts[0] != CONST_PARTS_DIR_NAME && parts[0] != CONST_FINAL_DIR_NAME {
		return false
	}
	return reBucketKey.MatchString(parts[5])
}

// WatchCacheChange observes the cache root for files created by other
// processes. Anything landing outside the expected layout is flagged, since
// the garbage collector will sweep it just like an upload.
func (c *Server) WatchCacheChange() {
	var (
		w       *watcher.Watcher
		rootAbs string
		err     error
	)
	w = watcher.New()
	w.FilterOps(watcher.Create)
	rootAbs, err = filepath.Abs(CACHE_DIR)
	if err != nil {
		log.Error(err)
		return
	}
	go func() {
		for {
			select {
			case event := <-w.Event:
				if event.IsDir() {
					continue
				}
				rel := strings.Replace(event.Path, rootAbs+string(os.PathSeparator), "", 1)
				if !isCachePath(rel) {
					log.Warn(fmt.Sprintf("foreign file in cache: %s (op:%s)", rel, event.Op.String()))
					continue
				}
				log.Info(fmt.Sprintf("cache change op:%s path:%s", event.Op.String(), rel))
			case err := <-w.Error:
				log.Error(err)
			case <-w.Closed:
				return
			}
		}
	}()
	if err = w.AddRecursive(rootAbs); err != nil {
		log.Error(err)
		return
	}
	if err = w.Start(time.Second * 1); err != nil {
		log.Error(err)
	}
}
