package listing

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/uprelay/uprelay/internal/common/errors"
	"github.com/uprelay/uprelay/internal/relay/storage"
)

// fakeBackend serves listings from an in-memory prefix map with
// offset-token pagination.
type fakeBackend struct {
	entries    map[string][]storage.Entry
	failPrefix string
	listCalls  int
	// maxPerPage caps pages below the requested limit, the way S3 does
	// when placeholder objects are filtered out of a delimited listing.
	maxPerPage int
}

func (f *fakeBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return nil
}

func (f *fakeBackend) List(ctx context.Context, prefix, token string, limit int) (*storage.Page, error) {
	f.listCalls++
	if f.failPrefix != "" && prefix == f.failPrefix {
		return nil, fmt.Errorf("backend exploded on %q", prefix)
	}

	all := f.entries[prefix]
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	if start >= len(all) {
		return &storage.Page{}, nil
	}

	if f.maxPerPage > 0 && (limit <= 0 || f.maxPerPage < limit) {
		limit = f.maxPerPage
	}
	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	page := &storage.Page{Entries: all[start:end]}
	if end < len(all) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeBackend) PublicURL(key string) string {
	return "https://store.example/bucket/" + key
}

func (f *fakeBackend) SignedURL(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	return "", errors.ErrNotSupported
}

func (f *fakeBackend) Close() error { return nil }

func file(name string, size int64, ms int64) storage.Entry {
	return storage.Entry{Name: name, Size: size, ModTime: time.UnixMilli(ms)}
}

func dir(name string) storage.Entry {
	return storage.Entry{Name: name, IsDir: true}
}

func TestAggregate_WalksPrefixes(t *testing.T) {
	backend := &fakeBackend{entries: map[string][]storage.Entry{
		"": {
			file("old-root__100.txt", 5, 100),
			dir("uploads"),
			dir("2023"),
		},
		"uploads": {
			file("report__300.pdf", 10, 300),
			dir("nested"),
		},
		"uploads/nested": {
			file("deep__200.bin", 7, 200),
		},
		"2023": {
			dir("11"),
		},
		"2023/11": {
			file("legacy-photo.jpg", 9, 150),
		},
	}}

	objects, err := NewAggregator(backend, 100, false).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if len(objects) != 4 {
		t.Fatalf("objects = %d, want 4", len(objects))
	}

	keys := make(map[string]Object)
	for _, obj := range objects {
		keys[obj.Key] = obj
	}

	for _, want := range []string{
		"old-root__100.txt",
		"uploads/report__300.pdf",
		"uploads/nested/deep__200.bin",
		"2023/11/legacy-photo.jpg",
	} {
		if _, ok := keys[want]; !ok {
			t.Errorf("missing object for key %q", want)
		}
	}

	t.Run("display names decoded", func(t *testing.T) {
		if got := keys["uploads/report__300.pdf"].DisplayName; got != "report.pdf" {
			t.Errorf("DisplayName = %q, want report.pdf", got)
		}
		// Pre-scheme files keep their raw name
		if got := keys["2023/11/legacy-photo.jpg"].DisplayName; got != "legacy-photo.jpg" {
			t.Errorf("DisplayName = %q, want legacy-photo.jpg", got)
		}
	})

	t.Run("content type inferred", func(t *testing.T) {
		if got := keys["uploads/report__300.pdf"].ContentType; got != "application/pdf" {
			t.Errorf("ContentType = %q, want application/pdf", got)
		}
		if got := keys["uploads/nested/deep__200.bin"].ContentType; got != "application/octet-stream" {
			t.Errorf("ContentType = %q, want application/octet-stream", got)
		}
	})

	t.Run("access URL from backend", func(t *testing.T) {
		want := "https://store.example/bucket/uploads/report__300.pdf"
		if got := keys["uploads/report__300.pdf"].AccessURL; got != want {
			t.Errorf("AccessURL = %q, want %q", got, want)
		}
	})
}

func TestAggregate_SortedByRecency(t *testing.T) {
	backend := &fakeBackend{entries: map[string][]storage.Entry{
		"": {
			file("a__10.txt", 1, 10),
			file("b__30.txt", 1, 30),
			file("c__20.txt", 1, 20),
		},
	}}

	objects, err := NewAggregator(backend, 100, false).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	for i := 1; i < len(objects); i++ {
		if objects[i-1].ModifiedAtMillis < objects[i].ModifiedAtMillis {
			t.Errorf("objects not sorted: %d before %d",
				objects[i-1].ModifiedAtMillis, objects[i].ModifiedAtMillis)
		}
	}
}

func TestAggregate_Dedupes(t *testing.T) {
	// The same raw entry surfacing twice must collapse to one object.
	dup := file("twice__500.txt", 4, 500)
	backend := &fakeBackend{entries: map[string][]storage.Entry{
		"": {dup, dup},
	}}

	objects, err := NewAggregator(backend, 100, false).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(objects) != 1 {
		t.Errorf("objects = %d, want 1 after dedupe", len(objects))
	}
}

func TestAggregate_Pagination(t *testing.T) {
	var entries []storage.Entry
	for i := 0; i < 250; i++ {
		entries = append(entries, file(fmt.Sprintf("f%03d__%d.txt", i, i), 1, int64(i)))
	}
	backend := &fakeBackend{entries: map[string][]storage.Entry{"": entries}}

	objects, err := NewAggregator(backend, 100, false).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(objects) != 250 {
		t.Errorf("objects = %d, want 250 across pages", len(objects))
	}
}

func TestAggregate_ShortTruncatedPages(t *testing.T) {
	// A page smaller than the requested limit that still carries a
	// continuation token must not end the walk.
	var entries []storage.Entry
	for i := 0; i < 100; i++ {
		entries = append(entries, file(fmt.Sprintf("f%03d__%d.txt", i, i), 1, int64(i)))
	}
	backend := &fakeBackend{
		entries:    map[string][]storage.Entry{"uploads": entries},
		maxPerPage: 50,
	}

	objects, err := NewAggregator(backend, 100, false).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(objects) != 100 {
		t.Errorf("objects = %d, want 100 across short truncated pages", len(objects))
	}
}

func TestAggregate_ListErrorAborts(t *testing.T) {
	backend := &fakeBackend{
		entries: map[string][]storage.Entry{
			"":        {dir("uploads")},
			"uploads": {file("x__1.txt", 1, 1)},
		},
		failPrefix: "uploads",
	}

	_, err := NewAggregator(backend, 100, false).Aggregate(context.Background())
	if err == nil {
		t.Fatal("Aggregate should fail when a list call fails")
	}
}

func TestAggregate_DownloadLinks(t *testing.T) {
	backend := &fakeBackend{entries: map[string][]storage.Entry{
		"uploads": {file("report__1.pdf", 1, 1)},
	}}

	t.Run("enabled", func(t *testing.T) {
		objects, err := NewAggregator(backend, 100, true).Aggregate(context.Background())
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		want := "/api/dl?key=uploads%2Freport__1.pdf"
		if objects[0].DownloadPath != want {
			t.Errorf("DownloadPath = %q, want %q", objects[0].DownloadPath, want)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		objects, err := NewAggregator(backend, 100, false).Aggregate(context.Background())
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if objects[0].DownloadPath != "" {
			t.Errorf("DownloadPath = %q, want empty", objects[0].DownloadPath)
		}
	})
}
