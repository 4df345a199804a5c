package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// HTTPStorage reads layer files from a web server. The index file lists one
// key per line, optionally followed by a revision token such as a checksum:
//
//	# comment
//	roads.geojson 5d41402abc4b2a76
//	rasters/dem.tif
//
// Keys without a token are imported once and never detected as changed.
type HTTPStorage struct {
	client    *http.Client
	baseURL   string
	indexFile string
	username  string
	password  string
	filter    Filter
}

// HTTPConfig holds HTTP storage configuration.
type HTTPConfig struct {
	BaseURL   string
	IndexFile string // default: index.txt
	Timeout   time.Duration
	Username  string
	Password  string
	Filter    Filter
}

// NewHTTPStorage creates a new HTTP storage adapter.
func NewHTTPStorage(cfg HTTPConfig) *HTTPStorage {
	if cfg.IndexFile == "" {
		cfg.IndexFile = "index.txt"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &HTTPStorage{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		indexFile: cfg.IndexFile,
		username:  cfg.Username,
		password:  cfg.Password,
		filter:    cfg.Filter,
	}
}

// List fetches and parses the index file.
func (s *HTTPStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	resp, err := s.do(ctx, http.MethodGet, s.indexFile)
	if err != nil {
		return nil, fmt.Errorf("fetching index file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index file returned status %d", resp.StatusCode)
	}

	objects, err := parseIndex(resp.Body, s.filter)
	if err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	return objects, nil
}

func parseIndex(r io.Reader, filter Filter) ([]output.StorageObject, error) {
	var objects []output.StorageObject
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		key := strings.TrimPrefix(fields[0], "/")
		if !filter.Match(key) {
			continue
		}
		obj := output.StorageObject{Key: key}
		if len(fields) > 1 {
			obj.ETag = fields[1]
		}
		objects = append(objects, obj)
	}
	return objects, scanner.Err()
}

// Stat issues a HEAD request for key.
func (s *HTTPStorage) Stat(ctx context.Context, key string) (output.StorageObject, error) {
	resp, err := s.do(ctx, http.MethodHead, key)
	if err != nil {
		return output.StorageObject{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return output.StorageObject{}, domain.ErrObjectNotFound
	default:
		return output.StorageObject{}, fmt.Errorf("HEAD %s returned status %d", key, resp.StatusCode)
	}

	obj := output.StorageObject{
		Key:  key,
		ETag: strings.Trim(resp.Header.Get("ETag"), `"`),
	}
	if resp.ContentLength > 0 {
		obj.Size = resp.ContentLength
	}
	if t, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		obj.LastModified = t.Unix()
	}
	return obj, nil
}

// Download fetches key into dest.
func (s *HTTPStorage) Download(ctx context.Context, key string, dest string) error {
	resp, err := s.do(ctx, http.MethodGet, key)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return writeFile(dest, resp.Body)
	case http.StatusNotFound, http.StatusGone:
		return domain.ErrObjectNotFound
	default:
		return fmt.Errorf("download returned status %d for %s", resp.StatusCode, key)
	}
}

func (s *HTTPStorage) do(ctx context.Context, method, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+key, nil)
	if err != nil {
		return nil, err
	}
	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	return s.client.Do(req)
}
