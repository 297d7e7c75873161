package server

import (
	"fmt"
	"net/http"
)

func (c *Server) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fmt.Fprintf(w, "bigupd %s", VERSION)
}

func (c *Server) initRouter() {
	http.HandleFunc("/", c.Index)
	http.HandleFunc("/bigup/upload", c.Receive)
	http.HandleFunc("/bigup/file", c.Fetch)
	http.HandleFunc("/bigup/list", c.List)
	http.HandleFunc("/status", c.Status)
	http.HandleFunc("/stat", c.Stat)
	http.HandleFunc("/gc", c.TriggerGc)
	http.HandleFunc("/reload", c.Reload)
	http.HandleFunc("/gen_google_secret", c.GenGoogleSecret)
	http.HandleFunc("/gen_google_code", c.GenGoogleCode)
}
