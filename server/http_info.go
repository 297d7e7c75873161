package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sjqzhang/seelog"
)

// IsAdmin gates the operational endpoints: caller ip must be listed in
// admin_ips, and when google auth is on a valid code must come along.
func (c *Server) IsAdmin(r *http.Request) bool {
	ip := c.util.GetClientIp(r)
	if !c.util.Contains(ip, Config().AdminIps) {
		return false
	}
	if Config().EnableGoogleAuth {
		r.ParseForm()
		if !c.VerifyGoogleCode(Config().GoogleAuthSecret, r.FormValue("code"), 30) {
			return false
		}
	}
	return true
}

func (c *Server) Status(w http.ResponseWriter, r *http.Request) {
	var (
		status   JsonResult
		sts      map[string]interface{}
		err      error
		appDir   string
		diskInfo *disk.UsageStat
		memInfo  *mem.VirtualMemoryStat
	)
	if !c.IsAdmin(r) {
		status.Message = c.GetNotPermitMessage(r)
		w.Write([]byte(c.util.JsonEncodePretty(status)))
		return
	}
	memStat := new(runtime.MemStats)
	runtime.ReadMemStats(memStat)
	sts = make(map[string]interface{})
	sts["Up.Version"] = VERSION
	sts["Up.CacheDir"] = CACHE_DIR
	sts["Up.TokenExpire"] = Config().TokenExpire
	sts["Up.GcMaxAge"] = Config().GcMaxAge
	sts["Up.GcInterval"] = Config().GcInterval
	sts["Up.MaxSizeFile"] = Config().MaxSizeFile
	sts["Up.FileStats"] = c.GetStat()
	sts["Up.ShowDir"] = Config().ShowDir
	sts["Sys.NumGoroutine"] = runtime.NumGoroutine()
	sts["Sys.NumCpu"] = runtime.NumCPU()
	sts["Sys.Alloc"] = memStat.Alloc
	sts["Sys.TotalAlloc"] = memStat.TotalAlloc
	sts["Sys.HeapAlloc"] = memStat.HeapAlloc
	sts["Sys.Frees"] = memStat.Frees
	sts["Sys.HeapObjects"] = memStat.HeapObjects
	sts["Sys.NumGC"] = memStat.NumGC
	sts["Sys.GCCPUFraction"] = memStat.GCCPUFraction
	sts["Sys.GCSys"] = memStat.GCSys
	appDir, err = filepath.Abs(".")
	if err != nil {
		log.Error(err)
	}
	diskInfo, err = disk.Usage(appDir)
	if err != nil {
		log.Error(err)
	}
	sts["Sys.DiskInfo"] = diskInfo
	memInfo, err = mem.VirtualMemory()
	if err != nil {
		log.Error(err)
	}
	sts["Sys.MemInfo"] = memInfo
	status.Status = "ok"
	status.Data = sts
	w.Write([]byte(c.util.JsonEncodePretty(status)))
}

func (c *Server) Stat(w http.ResponseWriter, r *http.Request) {
	var (
		result JsonResult
	)
	if !c.IsAdmin(r) {
		result.Message = c.GetNotPermitMessage(r)
		w.Write([]byte(c.util.JsonEncodePretty(result)))
		return
	}
	result.Status = "ok"
	result.Data = c.GetStat()
	w.Write([]byte(c.util.JsonEncodePretty(result)))
}

// TriggerGc runs a sweep right away instead of waiting for the ticker. The
// optional max_age parameter overrides the configured age for this run.
func (c *Server) TriggerGc(w http.ResponseWriter, r *http.Request) {
	var (
		result JsonResult
	)
	if !c.IsAdmin(r) {
		result.Message = c.GetNotPermitMessage(r)
		w.Write([]byte(c.util.JsonEncodePretty(result)))
		return
	}
	r.ParseForm()
	maxAge := time.Duration(Config().GcMaxAge) * time.Second
	if v := r.FormValue("max_age"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			maxAge = d
		}
	}
	removed := c.GarbageCollect(maxAge)
	result.Status = "ok"
	result.Message = fmt.Sprintf("removed %d files", removed)
	result.Data = removed
	w.Write([]byte(c.util.JsonEncodePretty(result)))
}

// Reload re-reads cfg.json without restarting.
func (c *Server) Reload(w http.ResponseWriter, r *http.Request) {
	var (
		result JsonResult
	)
	if !c.IsAdmin(r) {
		result.Message = c.GetNotPermitMessage(r)
		w.Write([]byte(c.util.JsonEncodePretty(result)))
		return
	}
	ParseConfig(CONST_CONF_FILE_NAME)
	result.Status = "ok"
	result.Message = "reload ok"
	w.Write([]byte(c.util.JsonEncodePretty(result)))
}
