package server

import (
	"fmt"
	"net/http"

	log "github.com/sjqzhang/seelog"
)

// removeFile answers the delete action of the upload endpoint. 201 mirrors
// what the browser clients expect on success.
func (c *Server) removeFile(w http.ResponseWriter, r *http.Request, id Identity) {
	key := r.FormValue("identifiant")
	if key == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !c.DeleteFile(id, key) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	log.Info(fmt.Sprintf("removed %s for %s/%s", c.BucketKey(key), id.Actor, id.Form))
	w.WriteHeader(http.StatusCreated)
}
