package server

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	log "github.com/sjqzhang/seelog"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type StatDateFileInfo struct {
	Date      string `json:"date"`
	TotalSize int64  `json:"totalSize"`
	FileCount int64  `json:"fileCount"`
}

const statLevelDbPrefix = "stat_"

// FormatStatInfo seeds the in-memory counters on startup, preferring the
// json snapshot and falling back to the per-day records in leveldb.
func (c *Server) FormatStatInfo() {
	var (
		data  []byte
		err   error
		count int64
		stat  map[string]interface{}
	)
	if c.util.FileExists(CONST_STAT_FILE_NAME) {
		if data, err = c.util.ReadBinFile(CONST_STAT_FILE_NAME); err != nil {
			log.Error(err)
		} else {
			if err = json.Unmarshal(data, &stat); err != nil {
				log.Error(err)
			} else {
				for k, v := range stat {
					switch v.(type) {
					case float64:
						vv := strings.Split(fmt.Sprintf("%f", v), ".")[0]
						if count, err = strconv.ParseInt(vv, 10, 64); err != nil {
							log.Error(err)
						} else {
							c.statMap.Put(k, count)
						}
					default:
						c.statMap.Put(k, v)
					}
				}
			}
		}
		return
	}
	c.loadStatFromLevelDB()
}

func (c *Server) loadStatFromLevelDB() {
	var (
		count     int64
		fileCount int64
		totalSize int64
	)
	it := c.ldb.NewIterator(util.BytesPrefix([]byte(statLevelDbPrefix)), nil)
	defer it.Release()
	for it.Next() {
		key := strings.TrimPrefix(string(it.Key()), statLevelDbPrefix)
		if count = parseCount(it.Value()); count < 0 {
			continue
		}
		c.statMap.Put(key, count)
		if strings.HasSuffix(key, "_"+CONST_STAT_FILE_COUNT_KEY) {
			fileCount += count
		}
		if strings.HasSuffix(key, "_"+CONST_STAT_FILE_TOTAL_SIZE_KEY) {
			totalSize += count
		}
	}
	c.statMap.Put(CONST_STAT_FILE_COUNT_KEY, fileCount)
	c.statMap.Put(CONST_STAT_FILE_TOTAL_SIZE_KEY, totalSize)
}

func parseCount(v []byte) int64 {
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// SaveStat snapshots the counters to stat.json and pushes the per-day
// values into leveldb so history survives a lost snapshot.
func (c *Server) SaveStat() {
	SaveStatFunc := func() {
		defer func() {
			if re := recover(); re != nil {
				buffer := debug.Stack()
				log.Error("SaveStatFunc")
				log.Error(re)
				log.Error(string(buffer))
			}
		}()
		stat := c.statMap.Get()
		if v, ok := stat[CONST_STAT_FILE_COUNT_KEY]; ok {
			switch v.(type) {
			case int64, int32, int, float64, float32:
				if v.(int64) >= 0 {
					if data, err := json.Marshal(stat); err != nil {
						log.Error(err)
					} else {
						c.util.WriteBinFile(CONST_STAT_FILE_NAME, data)
					}
				}
			}
		}
		for k, v := range stat {
			if !strings.Contains(k, "_") {
				continue
			}
			if n, ok := v.(int64); ok {
				c.ldb.Put([]byte(statLevelDbPrefix+k), []byte(strconv.FormatInt(n, 10)), nil)
			}
		}
	}
	SaveStatFunc()
}

func (c *Server) SaveStatLoop() {
	for {
		time.Sleep(time.Minute * 1)
		c.curDate = c.util.GetToDay()
		c.SaveStat()
	}
}

// GetStat expands the sparse per-day counters into a dense row per day
// plus an "all" total row.
func (c *Server) GetStat() []StatDateFileInfo {
	var (
		min   int64
		max   int64
		err   error
		i     int64
		rows  []StatDateFileInfo
		total StatDateFileInfo
	)
	min = 20190101
	max = 20190101
	for k := range c.statMap.Get() {
		ks := strings.Split(k, "_")
		if len(ks) == 2 {
			if i, err = strconv.ParseInt(ks[0], 10, 64); err != nil {
				continue
			}
			if i >= max {
				max = i
			}
			if i < min {
				min = i
			}
		}
	}
	for i = min; i <= max; i++ {
		s := fmt.Sprintf("%d", i)
		if v, ok := c.statMap.GetValue(s + "_" + CONST_STAT_FILE_TOTAL_SIZE_KEY); ok {
			var info StatDateFileInfo
			info.Date = s
			switch v.(type) {
			case int64:
				info.TotalSize = v.(int64)
				total.TotalSize = total.TotalSize + v.(int64)
			}
			if v, ok := c.statMap.GetValue(s + "_" + CONST_STAT_FILE_COUNT_KEY); ok {
				switch v.(type) {
				case int64:
					info.FileCount = v.(int64)
					total.FileCount = total.FileCount + v.(int64)
				}
			}
			rows = append(rows, info)
		}
	}
	total.Date = "all"
	rows = append(rows, total)
	return rows
}
