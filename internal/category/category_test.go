package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://aerospike.com/docs/server/install", "docs"},
		{"https://aerospike.com/lp/free-trial", "marketing"},
		{"https://aerospike.com/s/article/123", "support"},
		{"https://aerospike.com/resources/white-papers/scaling", "white-papers"},
		{"https://aerospike.com/resources", "resources"},
		{"https://aerospike.com/blog/post?client=java", "blog"},
		{"https://aerospike.com/", ""},
		{"https://aerospike.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, FromURL(tt.url))
		})
	}
}
