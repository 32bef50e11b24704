package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPublicPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		publicPaths []string
		want        bool
	}{
		{"exact match", "/health", DefaultPublicPaths, true},
		{"subpath match", "/metrics/extra", DefaultPublicPaths, true},
		{"protected run trigger", "/v1/runs", DefaultPublicPaths, false},
		{"nil public paths", "/health", nil, false},
		{"traversal to protected", "/health/../v1/runs", DefaultPublicPaths, false},
		{"traversal stays public", "/version/a/../b", DefaultPublicPaths, true},
		{"encoded separators", "/health/..%2f..%2fv1/runs", DefaultPublicPaths, false},
		{"encoded dot", "/health/%2E%2E/v1/runs", DefaultPublicPaths, false},
		{"prefix without boundary", "/healthcheck", DefaultPublicPaths, false},
		{"trailing slash", "/readiness/", DefaultPublicPaths, true},
		{"double slash", "//health", DefaultPublicPaths, true},
		{"root makes all public", "/v1/members/1", []string{"/"}, true},
		{"case sensitive", "/Health", DefaultPublicPaths, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPublicPath(tt.path, tt.publicPaths), "path=%q", tt.path)
		})
	}
}
