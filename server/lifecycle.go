package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sjqzhang/seelog"
)

// ListAssembled returns the descriptions of every fully assembled file of
// the identity's form instance, across all of its fields. A missing
// directory means nothing was uploaded yet.
func (c *Server) ListAssembled(id Identity) []UploadDescriptor {
	var (
		descs   []UploadDescriptor
		formDir = c.formDir(CONST_FINAL_DIR_NAME, id)
	)
	if !c.util.FileExists(formDir) {
		return descs
	}
	filepath.Walk(formDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn(fmt.Sprintf("list walk %s error: %v", path, err))
			return nil
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") || IsDescriptionFile(info.Name()) {
			return nil
		}
		desc, derr := c.readDescription(path)
		if derr != nil {
			// sidecar lost, rebuild what we can from the path
			fid := id
			fid.Field = fieldOfCachePath(formDir, path)
			if desc, derr = c.describe(fid, filepath.Base(filepath.Dir(path)), path, info.Name(), info.Size()); derr != nil {
				return nil
			}
			c.writeDescription(path, desc)
		}
		descs = append(descs, desc)
		return nil
	})
	return descs
}

// fieldOfCachePath recovers the field segment from
// formDir/field/bucket/file.
func fieldOfCachePath(formDir, path string) string {
	rel, err := filepath.Rel(formDir, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}

// Reinstate grafts the assembled files of a form instance into the
// caller's file map, keyed by each file's recorded field shape, so a later
// form submission sees them exactly as if they had been posted with it.
// A non-empty only list restricts the graft to those bucket keys.
func (c *Server) Reinstate(id Identity, files FileMap, only []string) error {
	var firstErr error
	for _, desc := range c.ListAssembled(id) {
		if len(only) > 0 && !c.util.Contains(desc.Bigup.Identifiant, only) {
			continue
		}
		path, err := ParseFieldPath(desc.Bigup.Champ)
		if err != nil {
			log.Warn(fmt.Sprintf("reinstate %s: bad field %q: %v", desc.Name, desc.Bigup.Champ, err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err = files.Set(path, desc); err != nil {
			log.Warn(fmt.Sprintf("reinstate %s error: %v", desc.Name, err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DeleteFile discards one upload, assembled or in pieces, named by its raw
// identifier or bucket key. The bucket is searched under every field of the
// form instance on both cache sides. Reports whether anything was removed.
func (c *Server) DeleteFile(id Identity, key string) bool {
	var removed bool
	key = c.BucketKey(key)
	for _, side := range []string{CONST_PARTS_DIR_NAME, CONST_FINAL_DIR_NAME} {
		formDir := c.formDir(side, id)
		fields, err := os.ReadDir(formDir)
		if err != nil {
			continue
		}
		for _, field := range fields {
			if !field.IsDir() {
				continue
			}
			bucket := formDir + "/" + field.Name() + "/" + key
			if !c.util.FileExists(bucket) {
				continue
			}
			if err = c.RemoveDirTree(bucket); err != nil {
				log.Error(fmt.Sprintf("remove %s error: %v", bucket, err))
				continue
			}
			removed = true
			c.PruneEmptyDirs(filepath.Dir(bucket))
		}
	}
	return removed
}

// PurgeAll drops everything the identity's form instance has in the cache,
// typically once the enclosing form was processed for good.
func (c *Server) PurgeAll(id Identity) {
	for _, side := range []string{CONST_PARTS_DIR_NAME, CONST_FINAL_DIR_NAME} {
		formDir := c.formDir(side, id)
		if !c.util.FileExists(formDir) {
			continue
		}
		if err := c.RemoveDirTree(formDir); err != nil {
			log.Error(fmt.Sprintf("purge %s error: %v", formDir, err))
			continue
		}
		c.PruneEmptyDirs(filepath.Dir(formDir))
	}
}

// StoreWhole moves a file posted in one piece straight into the final
// cache, bypassing the chunk machinery, and writes its sidecar.
func (c *Server) StoreWhole(id Identity, filename string, payload io.Reader, size int64) (UploadDescriptor, error) {
	var (
		desc       UploadDescriptor
		err        error
		identifier = fmt.Sprintf("%d%s", size, filename)
		finalFile  = c.finalPath(id, identifier, filename)
	)
	if err = c.CreateDirChain(filepath.Dir(finalFile)); err != nil {
		return desc, err
	}
	if err = c.storeChunk(finalFile, payload); err != nil {
		return desc, err
	}
	if desc, err = c.describe(id, identifier, finalFile, filename, size); err != nil {
		return desc, err
	}
	if err = c.writeDescription(finalFile, desc); err != nil {
		return desc, err
	}
	return desc, nil
}
