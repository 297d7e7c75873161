package server

import (
	"fmt"

	"io/ioutil"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sjqzhang/seelog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary
var server *Server = nil
var logacc log.LoggerInterface
var FOLDERS = []string{DATA_DIR, CACHE_DIR, CONF_DIR}

var (
	FileName   string
	ptr        unsafe.Pointer
	DOCKER_DIR = ""
	CACHE_DIR  = CACHE_DIR_NAME
	CONF_DIR   = CONF_DIR_NAME
	LOG_DIR    = LOG_DIR_NAME
	DATA_DIR   = DATA_DIR_NAME

	CONST_LEVELDB_FILE_NAME = DATA_DIR + "/bigupd.db"
	CONST_STAT_FILE_NAME    = DATA_DIR + "/stat.json"
	CONST_CONF_FILE_NAME    = CONF_DIR + "/cfg.json"
	CONST_SERVER_CRT_FILE_NAME = CONF_DIR + "/server.crt"
	CONST_SERVER_KEY_FILE_NAME = CONF_DIR + "/server.key"

	logConfigStr = `
<seelog type="asynctimer" asyncinterval="1000" minlevel="trace" maxlevel="error">
	<outputs formatid="common">
		<buffered formatid="common" size="1048576" flushperiod="1000">
			<rollingfile type="size" filename="{DOCKER_DIR}log/bigupd.log" maxsize="104857600" maxrolls="10"/>
		</buffered>
	</outputs>
	 <formats>
		 <format id="common" format="%Date %Time [%LEV] [%File:%Line] [%Func] %Msg%n" />
	 </formats>
</seelog>
`
	logAccessConfigStr = `
<seelog type="asynctimer" asyncinterval="1000" minlevel="trace" maxlevel="error">
	<outputs formatid="common">
		<buffered formatid="common" size="1048576" flushperiod="1000">
			<rollingfile type="size" filename="{DOCKER_DIR}log/access.log" maxsize="104857600" maxrolls="10"/>
		</buffered>
	</outputs>
	 <formats>
		 <format id="common" format="%Date %Time [%LEV] [%File:%Line] [%Func] %Msg%n" />
	 </formats>
</seelog>
`
)

const (
	CACHE_DIR_NAME = "cache"
	LOG_DIR_NAME   = "log"
	DATA_DIR_NAME  = "data"
	CONF_DIR_NAME  = "conf"

	CONST_PARTS_DIR_NAME = "parts"
	CONST_FINAL_DIR_NAME = "final"

	CONST_SMALL_FILE_SIZE = int64(1024 * 1024)

	CONST_DESCRIPTION_SUFFIX = ".bigup.json"

	CONST_STAT_FILE_COUNT_KEY      = "fileCount"
	CONST_STAT_FILE_TOTAL_SIZE_KEY = "totalSize"

	CONST_TOKEN_NAMESPACE = "bigup"

	CONST_MESSAGE_NOT_PERMIT = "Can only be called by 127.0.0.1 or admin_ips(cfg.json),current ip:%s"

	cfgJson = `{
	"addr": ":8080",
	"enable_https": false,
	"secret": "%s",
	"token_expire": 86400,
	"max_size_file": 128,
	"gc_max_age": 86400,
	"gc_interval": 3600,
	"session_cookie": "bigup_session",
	"actor_header": "",
	"admin_ips": ["127.0.0.1"],
	"enable_cross_origin": true,
	"enable_google_auth": false,
	"google_auth_secret": "",
	"enable_watcher": false,
	"show_dir": false,
	"alarm_receivers": [],
	"alarm_url": "",
	"mail": {
		"user": "abc@163.com",
		"password": "abc",
		"host": "smtp.163.com:25"
	},
	"extensions": [],
	"default_extension": "bin",
	"read_timeout": 60,
	"read_header_timeout": 10,
	"write_timeout": 60,
	"idle_timeout": 30
}
	`
)

type Mail struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Host     string `json:"host"`
}

type GlobalConfig struct {
	Addr              string   `json:"addr"`
	EnableHttps       bool     `json:"enable_https"`
	Secret            string   `json:"secret"`
	TokenExpire       int64    `json:"token_expire"`
	MaxSizeFile       int64    `json:"max_size_file"`
	GcMaxAge          int64    `json:"gc_max_age"`
	GcInterval        int64    `json:"gc_interval"`
	SessionCookie     string   `json:"session_cookie"`
	ActorHeader       string   `json:"actor_header"`
	AdminIps          []string `json:"admin_ips"`
	EnableCrossOrigin bool     `json:"enable_cross_origin"`
	EnableGoogleAuth  bool     `json:"enable_google_auth"`
	GoogleAuthSecret  string   `json:"google_auth_secret"`
	EnableWatcher     bool     `json:"enable_watcher"`
	ShowDir           bool     `json:"show_dir"`
	AlarmReceivers    []string `json:"alarm_receivers"`
	AlarmUrl          string   `json:"alarm_url"`
	Mail              Mail     `json:"mail"`
	Extensions        []string `json:"extensions"`
	DefaultExtension  string   `json:"default_extension"`
	ReadTimeout       int      `json:"read_timeout"`
	ReadHeaderTimeout int      `json:"read_header_timeout"`
	WriteTimeout      int      `json:"write_timeout"`
	IdleTimeout       int      `json:"idle_timeout"`
}

func Config() *GlobalConfig {
	return (*GlobalConfig)(atomic.LoadPointer(&ptr))
}

func ParseConfig(filePath string) {
	var (
		data []byte
	)
	if filePath == "" {
		data = []byte(strings.TrimSpace(fmt.Sprintf(cfgJson, "")))
	} else {
		file, err := os.Open(filePath)
		if err != nil {
			panic(fmt.Sprintln("open file path:", filePath, "error:", err))
		}
		defer file.Close()
		FileName = filePath
		data, err = ioutil.ReadAll(file)
		if err != nil {
			panic(fmt.Sprintln("file path:", filePath, " read all error:", err))
		}
	}
	var c GlobalConfig
	if err := json.Unmarshal(data, &c); err != nil {
		panic(fmt.Sprintln("file path:", filePath, "json unmarshal error:", err))
	}
	if c.SessionCookie == "" {
		c.SessionCookie = "bigup_session"
	}
	if c.TokenExpire <= 0 {
		c.TokenExpire = 86400
	}
	if c.GcMaxAge <= 0 {
		c.GcMaxAge = 86400
	}
	if c.DefaultExtension == "" {
		c.DefaultExtension = "bin"
	}
	atomic.StorePointer(&ptr, unsafe.Pointer(&c))
	log.Info("config parse success")
}

func (c *Server) NotPermit(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(403)
}

func (c *Server) GetNotPermitMessage(r *http.Request) string {
	return fmt.Sprintf(CONST_MESSAGE_NOT_PERMIT, c.util.GetClientIp(r))
}
