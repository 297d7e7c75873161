package server

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// findAssembled locates the data file of one assembled upload across the
// fields of the form instance.
func (c *Server) findAssembled(id Identity, key string) (string, bool) {
	formDir := c.formDir(CONST_FINAL_DIR_NAME, id)
	fields, err := os.ReadDir(formDir)
	if err != nil {
		return "", false
	}
	for _, field := range fields {
		if !field.IsDir() {
			continue
		}
		bucket := formDir + "/" + field.Name() + "/" + key
		entries, err := os.ReadDir(bucket)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") || IsDescriptionFile(e.Name()) {
				continue
			}
			return bucket + "/" + e.Name(), true
		}
	}
	return "", false
}

// Fetch serves an assembled file back to its owner, typically for a
// preview before the form is submitted. Images can be scaled down on the
// fly with width/height, and download=1 forces an attachment.
func (c *Server) Fetch(w http.ResponseWriter, r *http.Request) {
	var (
		id  Identity
		err error
	)
	if id, err = c.identityFromRequest(w, r); err != nil {
		c.NotPermit(w, r)
		return
	}
	key := c.BucketKey(r.FormValue("identifiant"))
	filePath, ok := c.findAssembled(id, key)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	width, _ := strconv.Atoi(r.FormValue("width"))
	height, _ := strconv.Atoi(r.FormValue("height"))
	if width > 0 || height > 0 {
		if fi, e := os.Stat(filePath); e == nil && fi.Size() <= CONST_SMALL_FILE_SIZE {
			if data, e := c.util.ReadBinFile(filePath); e == nil {
				c.ResizeImageByBytes(w, data, uint(width), uint(height))
				return
			}
		}
		c.ResizeImage(w, filePath, uint(width), uint(height))
		return
	}
	if r.FormValue("download") == "1" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=\"%s\"", url.PathEscape(filepath.Base(filePath))))
	}
	http.ServeFile(w, r, filePath)
}

// List returns the descriptions of every assembled file the token's form
// instance currently holds.
func (c *Server) List(w http.ResponseWriter, r *http.Request) {
	var (
		id     Identity
		err    error
		result JsonResult
	)
	if id, err = c.identityFromRequest(w, r); err != nil {
		c.NotPermit(w, r)
		return
	}
	descs := c.ListAssembled(id)
	public := make([]UploadDescriptor, 0, len(descs))
	for _, d := range descs {
		public = append(public, d.Public())
	}
	result.Status = "ok"
	result.Data = public
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(c.util.JsonEncodePretty(result)))
}
