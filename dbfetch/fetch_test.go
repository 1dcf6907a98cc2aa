package dbfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/pgzip"
)

func gzipped(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pgzip.NewWriter(&buf)
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readString(t *testing.T, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestPR2Sources(t *testing.T) {
	sources := PR2Sources("")
	if len(sources) != 2 || sources[0].URL != DefaultMirror+"/pr2_version_5.0.0_SSU_mothur.fasta.gz" || sources[1].Name != "pr2_taxonomy.tsv.gz" {
		t.Errorf("unexpected sources %+v", sources)
	}
	if got := PR2Sources("s3://mirror/pr2/")[1].URL; got != "s3://mirror/pr2/pr2_version_5.0.0_SSU_mothur.tax.gz" {
		t.Errorf("mirror not applied: %s", got)
	}
}

func TestFetchHTTP(t *testing.T) {
	fasta := gzipped(t, ">seq1\nACGT\n")
	tax := gzipped(t, "seq1\tEukaryota;\n")
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		switch r.URL.Path {
		case "/pr2_version_5.0.0_SSU_mothur.fasta.gz":
			w.Write(fasta)
		case "/pr2_version_5.0.0_SSU_mothur.tax.gz":
			w.Write(tax)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "db", "pr2")
	f := &Fetcher{Sources: PR2Sources(server.URL), HTTP: server.Client()}
	if err := f.Fetch(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	if got := readString(t, filepath.Join(dir, "pr2_with_taxonomy_simple.fasta")); got != ">seq1\nACGT\n" {
		t.Errorf("unexpected fasta %q", got)
	}
	if got := readString(t, filepath.Join(dir, "pr2_taxonomy.tsv")); got != "seq1\tEukaryota;\n" {
		t.Errorf("unexpected taxonomy %q", got)
	}

	// present files are not fetched again
	if err := f.Fetch(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("expected 2 requests, got %d", n)
	}

	// an empty file does not count as present
	os.WriteFile(filepath.Join(dir, "pr2_taxonomy.tsv.gz"), nil, 0644)
	if err := f.Fetch(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&requests); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}

	if err := f.Fetch(context.Background(), dir, true); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&requests); n != 5 {
		t.Errorf("force must download everything again, got %d requests", n)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".partial-") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	dir := t.TempDir()
	f := &Fetcher{Sources: []Source{{URL: server.URL + "/missing.gz", Name: "missing.gz", Decompress: true}}, HTTP: server.Client()}
	if err := f.Fetch(context.Background(), dir, false); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.gz")); !os.IsNotExist(err) {
		t.Error("no file may be written for a failed download")
	}
}

func TestFetchLocal(t *testing.T) {
	src := t.TempDir()
	os.WriteFile(filepath.Join(src, "a.txt.gz"), gzipped(t, "alpha"), 0644)
	os.WriteFile(filepath.Join(src, "b.txt"), []byte("beta"), 0644)

	dir := t.TempDir()
	f := &Fetcher{Sources: []Source{
		{URL: "file://" + filepath.Join(src, "a.txt.gz"), Name: "a.txt.gz", Decompress: true},
		{URL: filepath.Join(src, "b.txt"), Name: "b.txt"},
	}}
	if err := f.Fetch(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	if got := readString(t, filepath.Join(dir, "a.txt")); got != "alpha" {
		t.Errorf("unexpected content %q", got)
	}
	if got := readString(t, filepath.Join(dir, "b.txt")); got != "beta" {
		t.Errorf("unexpected content %q", got)
	}

	f.Sources = []Source{{URL: filepath.Join(src, "b.txt"), Name: "b.txt", Decompress: true}}
	if err := f.Fetch(context.Background(), dir, true); err == nil {
		t.Error("expected an error decompressing a file without .gz suffix")
	}
}

// fakeS3 serves path-style GetObject requests from memory.
type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	body, ok := f.objects[req.URL.Path]
	if req.Method != http.MethodGet || !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
		"Content-Length": {fmt.Sprintf("%d", len(body))},
		"Content-Type":   {"application/gzip"},
	}}, nil
}

func TestFetchS3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"/mirror/pr2/pr2_version_5.0.0_SSU_mothur.fasta.gz": gzipped(t, ">s3\nACGT\n"),
		"/mirror/pr2/pr2_version_5.0.0_SSU_mothur.tax.gz":   gzipped(t, "s3\tBacteria;\n"),
	}}
	dir := t.TempDir()
	f := &Fetcher{
		Sources: PR2Sources("s3://mirror/pr2"),
		S3Config: S3Config{
			Endpoint:        "https://minio.local",
			PathStyle:       true,
			AccessKeyID:     "AKIA",
			SecretAccessKey: "SECRET",
			HTTPClient:      &http.Client{Transport: fake},
		},
	}
	if err := f.Fetch(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	if got := readString(t, filepath.Join(dir, "pr2_taxonomy.tsv")); got != "s3\tBacteria;\n" {
		t.Errorf("unexpected taxonomy %q", got)
	}

	f.Sources = []Source{{URL: "s3://mirror/none.gz", Name: "none.gz"}}
	if err := f.Fetch(context.Background(), dir, false); err == nil {
		t.Error("expected an error for a missing object")
	}
}
