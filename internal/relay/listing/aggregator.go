// Package listing aggregates stored objects across backend prefixes.
package listing

import (
	"context"
	"mime"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/uprelay/uprelay/internal/common/errors"
	"github.com/uprelay/uprelay/internal/common/logger"
	"github.com/uprelay/uprelay/internal/relay/naming"
	"github.com/uprelay/uprelay/internal/relay/storage"
)

// UploadsPrefix is where the upload handler places new objects.
const UploadsPrefix = "uploads"

// Legacy date-bucketed layout: objects nested under <year>/<month>.
// Retained for backward-compatible listing only.
var (
	yearRe  = regexp.MustCompile(`^\d{4}$`)
	monthRe = regexp.MustCompile(`^\d{2}$`)
)

// Object is one stored file presented to clients.
type Object struct {
	DisplayName      string `json:"name"`
	AccessURL        string `json:"url"`
	ContentType      string `json:"type"`
	SizeBytes        int64  `json:"size"`
	ModifiedAtMillis int64  `json:"uploadedAt"`
	Key              string `json:"key,omitempty"`
	DownloadPath     string `json:"dl,omitempty"`
}

// Aggregator walks the backend and produces a flat, deduplicated listing
// sorted newest first. Every call is a full rescan; there is no persisted
// index, which is acceptable at the expected object counts.
type Aggregator struct {
	backend       storage.Backend
	pageSize      int
	downloadLinks bool
	logger        *zap.Logger
}

// NewAggregator creates a new Aggregator. downloadLinks controls whether
// objects carry a force-download endpoint path, which only backends with
// signed URL support can serve.
func NewAggregator(backend storage.Backend, pageSize int, downloadLinks bool) *Aggregator {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Aggregator{
		backend:       backend,
		pageSize:      pageSize,
		downloadLinks: downloadLinks,
		logger:        logger.WithComponent("Aggregator"),
	}
}

// Aggregate walks the root prefix, the uploads prefix and any legacy date
// buckets, recursing into every directory via an explicit worklist, and
// returns the deduplicated objects sorted by recency.
func (a *Aggregator) Aggregate(ctx context.Context) ([]Object, error) {
	worklist, err := a.seedPrefixes(ctx)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	var objects []Object

	for len(worklist) > 0 {
		prefix := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		norm := path.Clean("/" + prefix)
		if visited[norm] {
			continue
		}
		visited[norm] = true

		token := ""
		for {
			page, err := a.backend.List(ctx, prefix, token, a.pageSize)
			if err != nil {
				return nil, errors.E("Aggregator.Aggregate", errors.ErrListFailed, err, prefix)
			}

			for _, entry := range page.Entries {
				if entry.IsDir {
					worklist = append(worklist, join(prefix, entry.Name))
					continue
				}
				objects = append(objects, a.toObject(prefix, entry))
			}

			// Only an empty token means the prefix is exhausted; backends
			// may return short pages that are still truncated.
			if page.NextToken == "" {
				break
			}
			token = page.NextToken
		}
	}

	objects = dedupe(objects)
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].ModifiedAtMillis > objects[j].ModifiedAtMillis
	})

	a.logger.Debug("aggregated listing", zap.Int("objects", len(objects)))
	return objects, nil
}

// seedPrefixes returns the fixed prefix set to scan: the root, the uploads
// prefix, and legacy <year>/<month> buckets discovered at the top level.
func (a *Aggregator) seedPrefixes(ctx context.Context) ([]string, error) {
	seeds := []string{"", UploadsPrefix}

	years, err := a.listDirs(ctx, "", yearRe)
	if err != nil {
		return nil, err
	}
	for _, year := range years {
		months, err := a.listDirs(ctx, year, monthRe)
		if err != nil {
			return nil, err
		}
		for _, month := range months {
			seeds = append(seeds, join(year, month))
		}
	}

	return seeds, nil
}

// listDirs pages through prefix and returns directory names matching re.
func (a *Aggregator) listDirs(ctx context.Context, prefix string, re *regexp.Regexp) ([]string, error) {
	var dirs []string
	token := ""
	for {
		page, err := a.backend.List(ctx, prefix, token, a.pageSize)
		if err != nil {
			return nil, errors.E("Aggregator.listDirs", errors.ErrListFailed, err, prefix)
		}
		for _, entry := range page.Entries {
			if entry.IsDir && re.MatchString(entry.Name) {
				dirs = append(dirs, join(prefix, entry.Name))
			}
		}
		if page.NextToken == "" {
			return dirs, nil
		}
		token = page.NextToken
	}
}

// toObject converts one raw file entry into a client-facing object.
func (a *Aggregator) toObject(prefix string, entry storage.Entry) Object {
	key := join(prefix, entry.Name)

	contentType := entry.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(entry.Name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	obj := Object{
		DisplayName:      naming.Decode(entry.Name),
		AccessURL:        a.backend.PublicURL(key),
		ContentType:      contentType,
		SizeBytes:        entry.Size,
		ModifiedAtMillis: entry.ModTime.UnixMilli(),
		Key:              key,
	}
	if a.downloadLinks {
		obj.DownloadPath = "/api/dl?key=" + url.QueryEscape(key)
	}
	return obj
}

// dedupe drops entries sharing (key, size, modifiedAt); the same object is
// reachable through more than one scanned prefix.
func dedupe(objects []Object) []Object {
	seen := make(map[string]bool, len(objects))
	out := objects[:0]
	for _, obj := range objects {
		id := obj.Key
		if id == "" {
			id = obj.AccessURL
		}
		composite := id + "|" + strconv.FormatInt(obj.SizeBytes, 10) + "|" +
			strconv.FormatInt(obj.ModifiedAtMillis, 10)
		if seen[composite] {
			continue
		}
		seen[composite] = true
		out = append(out, obj)
	}
	return out
}

// join joins a prefix and a name without introducing a leading slash.
func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
