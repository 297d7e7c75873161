package server

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
)

type uploadParams struct {
	token      string
	form       string
	formArgs   string
	identifier string
	filename   string
	chunk      int
	chunkSize  int64
	totalSize  int64
	payload    []byte
	action     string
	prefix     string
}

func (p *uploadParams) values() url.Values {
	prefix := p.prefix
	if prefix == "" {
		prefix = "flow"
	}
	v := url.Values{}
	v.Set("bigup_token", p.token)
	v.Set("formulaire_action", p.form)
	v.Set("formulaire_action_args", p.formArgs)
	if p.action != "" {
		v.Set("bigup_action", p.action)
		v.Set("identifiant", p.identifier)
		return v
	}
	v.Set(prefix+"Identifier", p.identifier)
	v.Set(prefix+"Filename", p.filename)
	v.Set(prefix+"ChunkNumber", fmt.Sprintf("%d", p.chunk))
	v.Set(prefix+"ChunkSize", fmt.Sprintf("%d", p.chunkSize))
	v.Set(prefix+"TotalSize", fmt.Sprintf("%d", p.totalSize))
	return v
}

func sessionCookie() *http.Cookie {
	return &http.Cookie{Name: Config().SessionCookie, Value: "testsession"}
}

func doProbe(t *testing.T, c *Server, p uploadParams) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest("GET", "/bigup/upload?"+p.values().Encode(), nil)
	r.AddCookie(sessionCookie())
	w := httptest.NewRecorder()
	c.Receive(w, r)
	return w
}

func doUpload(t *testing.T, c *Server, p uploadParams) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, vs := range p.values() {
		mw.WriteField(k, vs[0])
	}
	if p.action == "" {
		fw, err := mw.CreateFormFile("file", p.filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(p.payload)
	}
	mw.Close()
	r := httptest.NewRequest("POST", "/bigup/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.AddCookie(sessionCookie())
	w := httptest.NewRecorder()
	c.Receive(w, r)
	return w
}

func chunkBytes(n int, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte('a' + n)
	}
	return b
}

func TestProbeAbsentThenPresent(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("probeform", "args1", "file"), form: "probeform", formArgs: "args1",
		identifier: "2500probe.txt", filename: "probe.txt",
		chunk: 1, chunkSize: 1000, totalSize: 2500, payload: chunkBytes(1, 1000),
	}
	if w := doProbe(t, c, p); w.Code != http.StatusNoContent {
		t.Fatalf("probe before upload: %d, want 204", w.Code)
	}
	if w := doUpload(t, c, p); w.Code != http.StatusOK {
		t.Fatalf("upload: %d, want 200", w.Code)
	}
	if w := doProbe(t, c, p); w.Code != http.StatusOK {
		t.Fatalf("probe after upload: %d, want 200", w.Code)
	}
}

func TestUploadBadToken(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: "file:12345:deadbeef", form: "f", formArgs: "a",
		identifier: "10x.txt", filename: "x.txt",
		chunk: 1, chunkSize: 10, totalSize: 10, payload: chunkBytes(1, 10),
	}
	if w := doUpload(t, c, p); w.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403", w.Code)
	}
}

func TestUploadUnknownClient(t *testing.T) {
	c := initTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("bigup_token", c.IssueToken("f2", "a2", "file"))
	mw.WriteField("formulaire_action", "f2")
	mw.WriteField("formulaire_action_args", "a2")
	mw.WriteField("someIdentifier", "x")
	mw.Close()
	r := httptest.NewRequest("POST", "/bigup/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.AddCookie(sessionCookie())
	w := httptest.NewRecorder()
	c.Receive(w, r)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("code = %d, want 415", w.Code)
	}
}

func TestResumablePrefixAccepted(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("resform", "resargs", "file"), form: "resform", formArgs: "resargs",
		identifier: "5small.txt", filename: "small.txt",
		chunk: 1, chunkSize: 1000, totalSize: 5, payload: []byte("hello"),
		prefix: "resumable",
	}
	w := doUpload(t, c, p)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	var desc UploadDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("response is not a description: %v", err)
	}
	if desc.Name != "small.txt" || desc.Size != 5 {
		t.Errorf("desc = %+v", desc)
	}
}

func TestOrderIndependentAssembly(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("orderform", "oargs", "file"), form: "orderform", formArgs: "oargs",
		identifier: "2500order.txt", filename: "order.txt",
		chunkSize: 1000, totalSize: 2500,
	}
	var want bytes.Buffer
	sizes := []int{1000, 1000, 500}
	for n := 1; n <= 3; n++ {
		want.Write(chunkBytes(n, sizes[n-1]))
	}
	var last *httptest.ResponseRecorder
	for _, n := range []int{2, 3, 1} {
		q := p
		q.chunk = n
		q.payload = chunkBytes(n, sizes[n-1])
		last = doUpload(t, c, q)
		if last.Code != http.StatusOK {
			t.Fatalf("chunk %d: code %d", n, last.Code)
		}
	}
	var desc UploadDescriptor
	if err := json.Unmarshal(last.Body.Bytes(), &desc); err != nil {
		t.Fatalf("final response is not a description: %v", err)
	}
	if desc.Bigup.Pathname != "" || desc.TmpName != "" {
		t.Error("server paths leaked in the response")
	}
	id := testIdentity(c, p.form, p.formArgs, "file")
	final := c.finalPath(id, p.identifier, p.filename)
	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("final file: %v", err)
	}
	if !bytes.Equal(got, want.Bytes()) {
		t.Error("assembled bytes differ from ordered concatenation")
	}
	if c.util.FileExists(c.bucketDir(CONST_PARTS_DIR_NAME, id, p.identifier)) {
		t.Error("parts bucket survived assembly")
	}
	if _, err := c.readDescription(final); err != nil {
		t.Errorf("sidecar: %v", err)
	}
}

func TestCompletionIsExact(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("exactform", "eargs", "file"), form: "exactform", formArgs: "eargs",
		identifier: "2500exact.txt", filename: "exact.txt",
		chunkSize: 1000, totalSize: 2500,
	}
	id := testIdentity(c, p.form, p.formArgs, "file")
	final := c.finalPath(id, p.identifier, p.filename)
	for _, n := range []int{1, 2} {
		q := p
		q.chunk = n
		q.payload = chunkBytes(n, 1000)
		doUpload(t, c, q)
		if c.util.FileExists(final) {
			t.Fatalf("assembled after only %d chunks", n)
		}
	}
	q := p
	q.chunk = 3
	q.payload = chunkBytes(3, 500)
	doUpload(t, c, q)
	if !c.util.FileExists(final) {
		t.Fatal("not assembled with all 3 chunks present")
	}
}

func TestZeroChunkSizeNeverCompletes(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("zeroform", "zargs", "file"), form: "zeroform", formArgs: "zargs",
		identifier: "100zero.txt", filename: "zero.txt",
		chunk: 1, chunkSize: 0, totalSize: 100, payload: chunkBytes(1, 100),
	}
	if w := doUpload(t, c, p); w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	id := testIdentity(c, p.form, p.formArgs, "file")
	if c.util.FileExists(c.finalPath(id, p.identifier, p.filename)) {
		t.Fatal("zero chunk size was treated as complete")
	}
}

func TestIdempotentAccept(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("idemform", "iargs", "file"), form: "idemform", formArgs: "iargs",
		identifier: "2000idem.txt", filename: "idem.txt",
		chunk: 1, chunkSize: 1000, totalSize: 2000, payload: chunkBytes(1, 1000),
	}
	doUpload(t, c, p)
	doUpload(t, c, p)
	id := testIdentity(c, p.form, p.formArgs, "file")
	bucket := c.bucketDir(CONST_PARTS_DIR_NAME, id, p.identifier)
	entries, err := os.ReadDir(bucket)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("bucket holds %d files, want 1", len(entries))
	}
	fi, _ := entries[0].Info()
	if fi.Size() != 1000 {
		t.Errorf("chunk size %d, want 1000", fi.Size())
	}
}

func TestSizeCapBeforePersist(t *testing.T) {
	c := initTestServer(t)
	saved := Config().MaxSizeFile
	Config().MaxSizeFile = 1 // 1 MB
	defer func() { Config().MaxSizeFile = saved }()
	p := uploadParams{
		token: c.IssueToken("capform", "cargs", "file"), form: "capform", formArgs: "cargs",
		identifier: "bigfile.bin", filename: "bigfile.bin",
		chunk: 1, chunkSize: 1000, totalSize: 10 * 1024 * 1024, payload: chunkBytes(1, 1000),
	}
	w := doUpload(t, c, p)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("code = %d, want 413", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Maximum file size")) {
		t.Errorf("body %q has no size message", w.Body.String())
	}
	id := testIdentity(c, p.form, p.formArgs, "file")
	if c.util.FileExists(c.bucketDir(CONST_PARTS_DIR_NAME, id, p.identifier)) {
		t.Error("chunk persisted despite the cap")
	}
}

func TestConcurrentLastChunk(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("raceform", "rargs", "file"), form: "raceform", formArgs: "rargs",
		identifier: "2500race.txt", filename: "race.txt",
		chunkSize: 1000, totalSize: 2500,
	}
	for _, n := range []int{1, 2} {
		q := p
		q.chunk = n
		q.payload = chunkBytes(n, 1000)
		doUpload(t, c, q)
	}
	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := p
			q.chunk = 3
			q.payload = chunkBytes(3, 500)
			codes[i] = doUpload(t, c, q).Code
		}(i)
	}
	wg.Wait()
	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: code %d, want 200", i, code)
		}
	}
	id := testIdentity(c, p.form, p.formArgs, "file")
	final := c.finalPath(id, p.identifier, p.filename)
	fi, err := os.Stat(final)
	if err != nil {
		t.Fatalf("final file: %v", err)
	}
	if fi.Size() != 2500 {
		t.Errorf("final size %d, want 2500", fi.Size())
	}
	f, _ := os.Open(final)
	defer f.Close()
	head := make([]byte, 1)
	tail := make([]byte, 1)
	f.Read(head)
	f.Seek(-1, io.SeekEnd)
	f.Read(tail)
	if head[0] != 'b' || tail[0] != 'd' {
		t.Errorf("assembled content corrupted: head %q tail %q", head, tail)
	}
}

func TestDeleteAction(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("delform", "dargs", "file"), form: "delform", formArgs: "dargs",
		identifier: "5del.txt", filename: "del.txt",
		chunk: 1, chunkSize: 1000, totalSize: 5, payload: []byte("bytes"),
	}
	if w := doUpload(t, c, p); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}
	q := p
	q.action = "effacer"
	if w := doUpload(t, c, q); w.Code != http.StatusCreated {
		t.Fatalf("delete: %d, want 201", w.Code)
	}
	if w := doUpload(t, c, q); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d, want 404", w.Code)
	}
}

func TestDeleteByBucketKey(t *testing.T) {
	c := initTestServer(t)
	p := uploadParams{
		token: c.IssueToken("delkform", "dkargs", "file"), form: "delkform", formArgs: "dkargs",
		identifier: "5delk.txt", filename: "delk.txt",
		chunk: 1, chunkSize: 1000, totalSize: 5, payload: []byte("bytes"),
	}
	if w := doUpload(t, c, p); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}
	q := p
	q.action = "effacer"
	q.identifier = c.BucketKey(p.identifier)
	if w := doUpload(t, c, q); w.Code != http.StatusCreated {
		t.Fatalf("delete by key: %d, want 201", w.Code)
	}
}
