// Package dbfetch downloads and unpacks the reference databases.
package dbfetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/pgzip"
)

// DefaultMirror hosts the PR2 release files.
const DefaultMirror = "https://windchime.poleshift.cloud"

// Source is one file to fetch into the database directory.
type Source struct {
	URL  string
	Name string

	// Decompress also writes Name without its .gz suffix.
	Decompress bool
}

// PR2Sources returns the PR2 v5.0.0 SSU files. A non-empty mirror replaces
// the default host; it may be an http(s), s3 or file URL or a directory.
func PR2Sources(mirror string) []Source {
	if mirror == "" {
		mirror = DefaultMirror
	}
	base := strings.TrimSuffix(mirror, "/")
	return []Source{
		{URL: base + "/pr2_version_5.0.0_SSU_mothur.fasta.gz", Name: "pr2_with_taxonomy_simple.fasta.gz", Decompress: true},
		{URL: base + "/pr2_version_5.0.0_SSU_mothur.tax.gz", Name: "pr2_taxonomy.tsv.gz", Decompress: true},
	}
}

// S3Config configures access to s3:// sources. Without keys the default
// credential chain is used.
type S3Config struct {
	Region          string
	Endpoint        string // optional, e.g. a MinIO mirror
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      *http.Client
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	}), nil
}

// ObjectGetter is the part of the S3 client the fetcher needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher downloads Sources into a directory.
type Fetcher struct {
	Sources []Source
	HTTP    *http.Client // http.DefaultClient when nil

	// S3 serves s3:// sources. When nil a client is built from S3Config
	// on first use.
	S3       ObjectGetter
	S3Config S3Config
}

// Fetch downloads every source into dir unless it is already there, then
// decompresses the ones that ask for it. force refreshes everything.
func (f *Fetcher) Fetch(ctx context.Context, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, src := range f.Sources {
		target := filepath.Join(dir, src.Name)
		if !force && present(target) {
			log.Printf("File '%s' already exists, skipping download.", target)
		} else {
			log.Printf("Downloading '%s' to '%s'...", src.URL, target)
			if err := f.download(ctx, src.URL, target); err != nil {
				return fmt.Errorf("downloading %s: %w", src.URL, err)
			}
		}
		if !src.Decompress {
			continue
		}
		plain := strings.TrimSuffix(target, ".gz")
		if plain == target {
			return fmt.Errorf("%s: cannot decompress a file without .gz suffix", target)
		}
		if !force && present(plain) {
			log.Printf("File '%s' already exists, skipping unzip.", plain)
			continue
		}
		log.Printf("Unzipping '%s' to '%s'...", target, plain)
		if err := gunzip(target, plain); err != nil {
			return fmt.Errorf("unzipping %s: %w", target, err)
		}
	}
	log.Println("Database download and extraction complete.")
	return nil
}

func present(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// open returns a reader for a source URL.
func (f *Fetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		client := f.HTTP
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return resp.Body, nil
	case "s3":
		if f.S3 == nil {
			client, err := NewS3Client(ctx, f.S3Config)
			if err != nil {
				return nil, err
			}
			f.S3 = client
		}
		key := strings.TrimPrefix(u.Path, "/")
		out, err := f.S3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(u.Host), Key: aws.String(key)})
		if err != nil {
			return nil, err
		}
		return out.Body, nil
	case "file":
		return os.Open(u.Path)
	case "":
		return os.Open(rawURL)
	}
	return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
}

func (f *Fetcher) download(ctx context.Context, rawURL, target string) error {
	r, err := f.open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer r.Close()
	return writeAtomic(target, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

func gunzip(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	gz, err := pgzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()
	return writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, gz)
		return err
	})
}

// writeAtomic fills a temporary file next to target and renames it into
// place once fill succeeded.
func writeAtomic(target string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".partial-"+filepath.Base(target)+"-*")
	if err != nil {
		return err
	}
	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
