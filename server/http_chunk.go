package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sjqzhang/seelog"
)

// chunkRequest are the wire parameters of one probe or upload, after the
// client prefix has been recognized and stripped.
type chunkRequest struct {
	Identifier  string
	Filename    string
	ChunkNumber int
	ChunkSize   int64
	TotalSize   int64
}

// parseChunkRequest recognizes which resumable client is speaking by the
// identifier parameter it sends, then reads the rest under the same prefix.
// An unrecognized client cannot be answered meaningfully.
func parseChunkRequest(r *http.Request) (*chunkRequest, bool) {
	var (
		prefix string
		req    chunkRequest
	)
	if r.FormValue("flowIdentifier") != "" {
		prefix = "flow"
	} else if r.FormValue("resumableIdentifier") != "" {
		prefix = "resumable"
	} else {
		return nil, false
	}
	req.Identifier = r.FormValue(prefix + "Identifier")
	req.Filename = r.FormValue(prefix + "Filename")
	req.ChunkNumber, _ = strconv.Atoi(r.FormValue(prefix + "ChunkNumber"))
	req.ChunkSize, _ = strconv.ParseInt(r.FormValue(prefix+"ChunkSize"), 10, 64)
	req.TotalSize, _ = strconv.ParseInt(r.FormValue(prefix+"TotalSize"), 10, 64)
	if req.Identifier == "" {
		req.Identifier = fmt.Sprintf("%d%s", req.TotalSize, req.Filename)
	}
	if req.ChunkNumber <= 0 {
		req.ChunkNumber = 1
	}
	return &req, true
}

// expectedChunks computes how many numbered pieces a complete upload has. A
// non-positive chunk size would make the division collapse to zero and mark
// every upload complete, so it is pinned to "never", and a zero byte file
// still sends one empty chunk.
func expectedChunks(totalSize, chunkSize int64) (int, bool) {
	if chunkSize <= 0 {
		return 0, false
	}
	n := int((totalSize + chunkSize - 1) / chunkSize)
	if n < 1 {
		n = 1
	}
	return n, true
}

// Receive is the single upload entry point. Every request carries a token;
// after verification it is dispatched on action and method.
func (c *Server) Receive(w http.ResponseWriter, r *http.Request) {
	var (
		id  Identity
		err error
	)
	if id, err = c.identityFromRequest(w, r); err != nil {
		c.NotPermit(w, r)
		return
	}
	switch r.FormValue("bigup_action") {
	case "effacer", "remove":
		c.removeFile(w, r, id)
		return
	}
	req, ok := parseChunkRequest(r)
	if !ok {
		http.Error(w, "unsupported upload client", http.StatusUnsupportedMediaType)
		return
	}
	if r.Method == http.MethodGet {
		c.probeChunk(w, id, req)
		return
	}
	c.acceptChunk(w, r, id, req)
}

// probeChunk tells a resuming client whether one numbered chunk is already
// on disk. Read only.
func (c *Server) probeChunk(w http.ResponseWriter, id Identity, req *chunkRequest) {
	if c.util.FileExists(c.chunkPath(id, req.Identifier, req.Filename, req.ChunkNumber)) {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Server) acceptChunk(w http.ResponseWriter, r *http.Request, id Identity, req *chunkRequest) {
	var (
		err       error
		file      io.ReadCloser
		chunkFile string
	)
	maxSize := Config().MaxSizeFile * 1024 * 1024
	if maxSize > 0 && req.TotalSize > maxSize {
		c.sizeLimitExceeded(w, maxSize)
		return
	}
	chunkFile = c.chunkPath(id, req.Identifier, req.Filename, req.ChunkNumber)
	if !c.util.FileExists(chunkFile) {
		if file, _, err = r.FormFile("file"); err != nil {
			log.Error(fmt.Sprintf("accept chunk %d of %s: no payload: %v", req.ChunkNumber, req.Filename, err))
			http.Error(w, "missing chunk payload", http.StatusUnsupportedMediaType)
			return
		}
		defer file.Close()
		if err = c.storeChunk(chunkFile, file); err != nil {
			log.Error(fmt.Sprintf("store chunk %s error: %v", chunkFile, err))
			http.Error(w, "chunk not stored", http.StatusUnsupportedMediaType)
			return
		}
	}
	expected, possible := expectedChunks(req.TotalSize, req.ChunkSize)
	if !possible || !c.allChunksPresent(id, req, expected) {
		w.Write([]byte("ok"))
		return
	}
	desc, err := c.assemble(id, req, expected)
	if err != nil {
		log.Error(fmt.Sprintf("assemble %s error: %v", req.Filename, err))
		http.Error(w, "assembly failed", http.StatusUnsupportedMediaType)
		return
	}
	c.statMap.AddCountInt64(CONST_STAT_FILE_COUNT_KEY, 1)
	c.statMap.AddCountInt64(CONST_STAT_FILE_TOTAL_SIZE_KEY, desc.Size)
	c.statMap.AddCountInt64(c.curDate+"_"+CONST_STAT_FILE_COUNT_KEY, 1)
	c.statMap.AddCountInt64(c.curDate+"_"+CONST_STAT_FILE_TOTAL_SIZE_KEY, desc.Size)
	data, _ := json.Marshal(desc.Public())
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (c *Server) sizeLimitExceeded(w http.ResponseWriter, maxSize int64) {
	data, _ := json.Marshal(map[string]interface{}{
		"error":   fmt.Sprintf("Maximum file size is %s", humanSize(maxSize)),
		"maxSize": maxSize,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	w.Write(data)
}

// storeChunk writes the payload next to its final name then renames, so a
// partially written chunk can never be mistaken for a stored one.
func (c *Server) storeChunk(chunkFile string, payload io.Reader) error {
	var (
		err error
		out *os.File
	)
	if err = c.CreateDirChain(filepath.Dir(chunkFile)); err != nil {
		return err
	}
	tmp := chunkFile + ".tmp" + c.util.GetUUID()
	if out, err = os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0664); err != nil {
		return err
	}
	if _, err = io.Copy(out, payload); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err = out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if c.util.FileExists(chunkFile) {
		// a concurrent retry already placed this chunk
		os.Remove(tmp)
		return nil
	}
	return os.Rename(tmp, chunkFile)
}

func (c *Server) allChunksPresent(id Identity, req *chunkRequest, expected int) bool {
	for i := 1; i <= expected; i++ {
		if !c.util.FileExists(c.chunkPath(id, req.Identifier, req.Filename, i)) {
			return false
		}
	}
	return true
}

// assemble concatenates the chunks in ascending order into the final area
// and writes the sidecar. Two requests can both deliver the last missing
// chunk and race here, so an already present final file is a success, and
// removal of the parts bucket tolerates a concurrent winner.
func (c *Server) assemble(id Identity, req *chunkRequest, expected int) (UploadDescriptor, error) {
	var (
		err       error
		desc      UploadDescriptor
		finalFile = c.finalPath(id, req.Identifier, req.Filename)
		partsDir  = c.bucketDir(CONST_PARTS_DIR_NAME, id, req.Identifier)
	)
	c.lockMap.LockKey(finalFile)
	defer c.lockMap.UnLockKey(finalFile)
	if c.util.FileExists(finalFile) {
		if desc, err = c.readDescription(finalFile); err == nil {
			return desc, nil
		}
		return c.describe(id, req.Identifier, finalFile, req.Filename, req.TotalSize)
	}
	if err = c.CreateDirChain(filepath.Dir(finalFile)); err != nil {
		return desc, err
	}
	if expected == 1 {
		src := c.chunkPath(id, req.Identifier, req.Filename, 1)
		if err = os.Rename(src, finalFile); err != nil && !c.util.FileExists(finalFile) {
			return desc, err
		}
	} else if err = c.concatChunks(id, req, expected, finalFile); err != nil {
		return desc, err
	}
	if desc, err = c.describe(id, req.Identifier, finalFile, req.Filename, req.TotalSize); err != nil {
		return desc, err
	}
	if err = c.writeDescription(finalFile, desc); err != nil {
		return desc, err
	}
	if err = c.RemoveDirTree(partsDir); err != nil {
		log.Warn(fmt.Sprintf("remove parts %s error: %v", partsDir, err))
	}
	c.PruneEmptyDirs(filepath.Dir(partsDir))
	log.Info(fmt.Sprintf("assembled %s (%d bytes) for %s/%s", desc.Name, desc.Size, id.Form, id.Field))
	return desc, nil
}

func (c *Server) concatChunks(id Identity, req *chunkRequest, expected int, finalFile string) error {
	var (
		err error
		out *os.File
		in  *os.File
	)
	tmp := finalFile + ".tmp" + c.util.GetUUID()
	if out, err = os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0664); err != nil {
		return err
	}
	for i := 1; i <= expected; i++ {
		if in, err = os.Open(c.chunkPath(id, req.Identifier, req.Filename, i)); err != nil {
			break
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			break
		}
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// keep the chunks so the client can retry the final send
		os.Remove(tmp)
		return err
	}
	if err = os.Rename(tmp, finalFile); err != nil {
		if c.util.FileExists(finalFile) {
			os.Remove(tmp)
			return nil
		}
		os.Remove(tmp)
		return err
	}
	return nil
}

func humanSize(n int64) string {
	switch {
	case n >= 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(n)/(1024*1024*1024))
	case n >= 1024*1024:
		return fmt.Sprintf("%.0f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.0f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%d B", n)
}
