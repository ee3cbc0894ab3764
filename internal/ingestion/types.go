// Package ingestion defines the request/response types and Kafka event schemas
// used between the crawler, the ingestion service and the indexer.
package ingestion

import "time"

// PageRequest is one crawled page as posted by the crawler.
type PageRequest struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Description    string `json:"desc"`
	Body           string `json:"body"`
	GeneratedIndex bool   `json:"generated_index"`
	CrawlID        string `json:"crawl_id"`
}

// PageResponse acknowledges a queued page.
type PageResponse struct {
	URL     string `json:"url"`
	CrawlID string `json:"crawl_id,omitempty"`
	Status  string `json:"status"`
}

// PageEvent is the page-crawled message. Its Kafka key is the page URL so
// every event for one document lands on the same partition.
type PageEvent struct {
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Description    string    `json:"desc"`
	Body           string    `json:"body"`
	GeneratedIndex bool      `json:"generated_index,omitempty"`
	CrawlID        string    `json:"crawl_id,omitempty"`
	CrawledAt      time.Time `json:"crawled_at"`
}

// CrawlCompleteRequest tells the ingestion service a crawl has finished.
type CrawlCompleteRequest struct {
	CrawlID string `json:"crawl_id"`
}

// CrawlCompleteEvent is the crawl-complete message. Pages is the number of
// page events published for the crawl, which the indexer waits for before
// sweeping.
type CrawlCompleteEvent struct {
	CrawlID     string    `json:"crawl_id"`
	Pages       int       `json:"pages"`
	CompletedAt time.Time `json:"completed_at"`
}
