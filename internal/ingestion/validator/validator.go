// Package validator provides input validation for ingestion requests and
// returns per-field error details.
package validator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aerospike-examples/hybrid-search/internal/indexer/index"
	"github.com/aerospike-examples/hybrid-search/internal/ingestion"
)

const (
	maxURLLength     = 2048
	maxTitleLength   = 1024
	maxDescLength    = 4096
	maxBodyLength    = 4 << 20
	maxCrawlIDLength = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidatePage checks a crawled page before it is queued for indexing.
func ValidatePage(req *ingestion.PageRequest) error {
	errs := make(map[string]string)

	switch {
	case strings.TrimSpace(req.URL) == "":
		errs["url"] = "url is required"
	case len(req.URL) > maxURLLength:
		errs["url"] = fmt.Sprintf("url must be at most %d characters", maxURLLength)
	case strings.Contains(req.URL, index.ChunkSeparator):
		errs["url"] = fmt.Sprintf("url must not contain %q", index.ChunkSeparator)
	default:
		u, err := url.Parse(req.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs["url"] = "url must be absolute"
		}
	}
	if len(req.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(req.Description) > maxDescLength {
		errs["desc"] = fmt.Sprintf("desc must be at most %d characters", maxDescLength)
	}
	if len(req.Body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d characters", maxBodyLength)
	}
	if len(req.CrawlID) > maxCrawlIDLength {
		errs["crawl_id"] = fmt.Sprintf("crawl_id must be at most %d characters", maxCrawlIDLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateCrawlComplete checks a crawl-complete notification.
func ValidateCrawlComplete(req *ingestion.CrawlCompleteRequest) error {
	errs := make(map[string]string)
	if strings.TrimSpace(req.CrawlID) == "" {
		errs["crawl_id"] = "crawl_id is required"
	} else if len(req.CrawlID) > maxCrawlIDLength {
		errs["crawl_id"] = fmt.Sprintf("crawl_id must be at most %d characters", maxCrawlIDLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
