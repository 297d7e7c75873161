package server

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func ageFiles(t *testing.T, dir string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		return os.Chtimes(path, old, old)
	})
}

func TestGarbageCollectSweepsOldUploads(t *testing.T) {
	c := initTestServer(t)
	// one abandoned partial upload, one assembled file
	p := uploadParams{
		token: c.IssueToken("gcform", "gargs", "file"), form: "gcform", formArgs: "gargs",
		identifier: "2000gcpart.txt", filename: "gcpart.txt",
		chunk: 1, chunkSize: 1000, totalSize: 2000, payload: chunkBytes(1, 1000),
	}
	if w := doUpload(t, c, p); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}
	uploadWhole(t, c, "gcform", "gargs", "file", "3gcdone.txt", "gcdone.txt", []byte("abc"))
	id := testIdentity(c, "gcform", "gargs", "file")
	ageFiles(t, c.formDir(CONST_PARTS_DIR_NAME, id), 48*time.Hour)
	ageFiles(t, c.formDir(CONST_FINAL_DIR_NAME, id), 48*time.Hour)
	removed := c.GarbageCollect(24 * time.Hour)
	if removed < 2 {
		t.Fatalf("removed %d files, want at least 2", removed)
	}
	for _, side := range []string{CONST_PARTS_DIR_NAME, CONST_FINAL_DIR_NAME} {
		if c.util.FileExists(c.formDir(side, id)) {
			t.Errorf("%s subtree survived the sweep", side)
		}
		if !c.util.FileExists(cacheSideDir(side)) {
			t.Errorf("sweep removed the %s side dir", side)
		}
	}
}

func TestGarbageCollectKeepsFreshUploads(t *testing.T) {
	c := initTestServer(t)
	uploadWhole(t, c, "gcfresh", "fargs", "file", "3keep.txt", "keep.txt", []byte("abc"))
	id := testIdentity(c, "gcfresh", "fargs", "file")
	c.GarbageCollect(24 * time.Hour)
	if len(c.ListAssembled(id)) != 1 {
		t.Fatal("fresh file was swept")
	}
}

func TestCleanDirRecursiveDropsOrphanSidecar(t *testing.T) {
	c := initTestServer(t)
	id := testIdentity(c, "gcorph", "oargs3", "file")
	bucket := c.bucketDir(CONST_FINAL_DIR_NAME, id, "3o.txt")
	if err := c.CreateDirChain(bucket); err != nil {
		t.Fatal(err)
	}
	sidecar := DescriptionPath(bucket + "/o.txt")
	os.WriteFile(sidecar, []byte("{}"), 0664)
	c.CleanDirRecursive(cacheSideDir(CONST_FINAL_DIR_NAME), 86400)
	if c.util.FileExists(sidecar) {
		t.Error("orphan sidecar survived")
	}
}

func TestRemoveDirTreeRefusesOutsideCache(t *testing.T) {
	c := initTestServer(t)
	outside, err := os.MkdirTemp("", "bigupd-outside")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(outside)
	if err := c.RemoveDirTree(outside); err == nil {
		t.Fatal("RemoveDirTree accepted a path outside the cache root")
	}
	if err := c.RemoveDirTree(CACHE_DIR); err == nil {
		t.Fatal("RemoveDirTree accepted the cache root itself")
	}
}

func TestPruneEmptyDirsBoundedAtRoot(t *testing.T) {
	c := initTestServer(t)
	deep := CACHE_DIR + "/" + CONST_PARTS_DIR_NAME + "/pruneactor/pruneform/inst/field/@deadbeef@"
	if err := c.CreateDirChain(deep); err != nil {
		t.Fatal(err)
	}
	c.PruneEmptyDirs(deep)
	if c.util.FileExists(CACHE_DIR + "/" + CONST_PARTS_DIR_NAME + "/pruneactor") {
		t.Error("empty chain not pruned")
	}
	if !c.util.FileExists(CACHE_DIR) {
		t.Error("prune climbed past the cache root")
	}
}
