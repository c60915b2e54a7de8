// Package dataset loads labeled project records from CSV. A record is a
// project title and description tagged with its topic label.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type Record struct {
	Title       string
	Description string
	Tag         string
}

// Text is the model input: title and description joined.
func (r Record) Text() string {
	return strings.TrimSpace(r.Title + " " + r.Description)
}

// Opener resolves a dataset location to a readable stream. Services plug in
// an object-store opener; the CLI uses local files and HTTP.
type Opener func(ctx context.Context, location string) (io.ReadCloser, error)

var ErrUnreachable = errors.New("dataset location unreachable")

// ReadCSV parses records from a CSV stream. The header must contain title,
// description, and tag columns; extra columns (id, created_on) are ignored.
// Tag may be empty for inference-only datasets.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	titleIdx, ok := cols["title"]
	if !ok {
		return nil, errors.New("dataset header missing title column")
	}
	descIdx, ok := cols["description"]
	if !ok {
		return nil, errors.New("dataset header missing description column")
	}
	tagIdx, hasTag := cols["tag"]

	var out []Record
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(out)+2, err)
		}
		record := Record{}
		if titleIdx < len(row) {
			record.Title = strings.TrimSpace(row[titleIdx])
		}
		if descIdx < len(row) {
			record.Description = strings.TrimSpace(row[descIdx])
		}
		if hasTag && tagIdx < len(row) {
			record.Tag = strings.TrimSpace(row[tagIdx])
		}
		if record.Text() == "" {
			continue
		}
		out = append(out, record)
	}
	if len(out) == 0 {
		return nil, errors.New("dataset has no records")
	}
	return out, nil
}

// Load opens a location and parses it as CSV.
func Load(ctx context.Context, open Opener, location string) ([]Record, error) {
	rc, err := open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadCSV(rc)
}

// LocalHTTPOpener reads local paths and http(s) URLs.
func LocalHTTPOpener(client *http.Client) Opener {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return func(ctx context.Context, location string) (io.ReadCloser, error) {
		if isHTTP(location) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
			}
			if resp.StatusCode != http.StatusOK {
				_ = resp.Body.Close()
				return nil, fmt.Errorf("%w: %s returned status %d", ErrUnreachable, location, resp.StatusCode)
			}
			return resp.Body, nil
		}

		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return f, nil
	}
}

// Probe verifies a location is reachable without reading it fully. Training
// fails fast on an unreachable dataset before any resources are allocated.
func Probe(ctx context.Context, client *http.Client, location string) error {
	location = strings.TrimSpace(location)
	if location == "" {
		return fmt.Errorf("%w: empty location", ErrUnreachable)
	}

	if isHTTP(location) {
		if client == nil {
			client = &http.Client{Timeout: 10 * time.Second}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, location, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%w: %s returned status %d", ErrUnreachable, location, resp.StatusCode)
		}
		return nil
	}

	info, err := os.Stat(location)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrUnreachable, location)
	}
	return nil
}

func isHTTP(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
