package server

import (
	"fmt"
	"time"

	log "github.com/sjqzhang/seelog"
)

// GarbageCollect sweeps both cache sides and removes every file older than
// maxAge plus the directories that emptied out. Abandoned partial uploads
// and assembled files never claimed by a form submit both end here.
func (c *Server) GarbageCollect(maxAge time.Duration) int {
	var (
		removed int
		seconds = int64(maxAge / time.Second)
	)
	if seconds <= 0 {
		seconds = Config().GcMaxAge
	}
	for _, side := range []string{CONST_PARTS_DIR_NAME, CONST_FINAL_DIR_NAME} {
		removed += c.CleanDirRecursive(cacheSideDir(side), seconds)
	}
	if removed > 0 {
		log.Info(fmt.Sprintf("gc removed %d stale cache files (max age %v)", removed, maxAge))
	}
	return removed
}

// CleanCacheLoop drives the periodic sweep. Interval and age both come from
// cfg.json so a busy site can tighten them without rebuilding.
func (c *Server) CleanCacheLoop() {
	interval := Config().GcInterval
	if interval <= 0 {
		interval = 3600
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		func() {
			defer func() {
				if re := recover(); re != nil {
					buffer := fmt.Sprintf("gc sweep panic: %v", re)
					log.Error(buffer)
					c.alarm("bigupd gc panic", buffer)
				}
			}()
			c.GarbageCollect(time.Duration(Config().GcMaxAge) * time.Second)
		}()
	}
}
