package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `id,created_on,title,description,tag
1,2020-02-17,Comparison between YOLO and RCNN,Object detection architectures compared on real world images.,computer-vision
2,2020-02-20,Show and Tell,A neural image caption generator trained end to end.,computer-vision
3,2020-02-24,AttentionWalk,Learning node embeddings via random walks with attention.,other
4,2020-03-07,BERT distillation,Distilling task specific knowledge from bert into simple transformers.,natural-language-processing
`

func TestReadCSV(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV() err=%v", err)
	}
	if len(records) != 4 {
		t.Fatalf("len=%d, want 4", len(records))
	}
	if records[0].Title != "Comparison between YOLO and RCNN" {
		t.Fatalf("title=%q", records[0].Title)
	}
	if records[3].Tag != "natural-language-processing" {
		t.Fatalf("tag=%q", records[3].Tag)
	}
}

func TestReadCSV_MissingColumns(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("a,b\n1,2\n")); err == nil {
		t.Fatalf("expected error for missing title column")
	}
	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := ReadCSV(strings.NewReader("title,description,tag\n")); err == nil {
		t.Fatalf("expected error for header-only input")
	}
}

func TestReadCSV_NoTagColumn(t *testing.T) {
	records, err := ReadCSV(strings.NewReader("title,description\nT,D\n"))
	if err != nil {
		t.Fatalf("ReadCSV() err=%v", err)
	}
	if records[0].Tag != "" {
		t.Fatalf("tag=%q, want empty", records[0].Tag)
	}
}

func TestLocalHTTPOpener_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	records, err := Load(context.Background(), LocalHTTPOpener(nil), path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if len(records) != 4 {
		t.Fatalf("len=%d, want 4", len(records))
	}
}

func TestLocalHTTPOpener_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	records, err := Load(context.Background(), LocalHTTPOpener(srv.Client()), srv.URL)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if len(records) != 4 {
		t.Fatalf("len=%d, want 4", len(records))
	}
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := Probe(ctx, nil, path); err != nil {
		t.Fatalf("Probe(local) err=%v", err)
	}

	if err := Probe(ctx, nil, filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err=%v, want ErrUnreachable", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method=%s, want HEAD", r.Method)
		}
	}))
	defer srv.Close()
	if err := Probe(ctx, srv.Client(), srv.URL); err != nil {
		t.Fatalf("Probe(http) err=%v", err)
	}

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()
	if err := Probe(ctx, missing.Client(), missing.URL); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err=%v, want ErrUnreachable for 404", err)
	}
}
