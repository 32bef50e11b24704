package versions

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	noVCS := func() (string, string) { return "", "" }
	withVCS := func() (string, string) { return "0123456789abcdef", "2026-03-01T10:20:30Z" }

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
		vcs       vcsReader
		want      Info
	}{
		{
			name:      "release build keeps injected values",
			version:   "v1.4.0",
			commit:    "abc123",
			buildDate: "2026-01-02T03:04:05Z",
			vcs:       withVCS,
			want: Info{
				Version:   "v1.4.0",
				Commit:    "abc123",
				BuildDate: "2026-01-02 03:04:05 UTC",
			},
		},
		{
			name:      "dev build reads vcs settings",
			version:   "dev",
			commit:    unknown,
			buildDate: unknown,
			vcs:       withVCS,
			want: Info{
				Version:   "dev-01234567",
				Commit:    "0123456789abcdef",
				BuildDate: "2026-03-01 10:20:30 UTC",
			},
		},
		{
			name:      "dev build without vcs",
			version:   "dev",
			commit:    unknown,
			buildDate: unknown,
			vcs:       noVCS,
			want: Info{
				Version:   "dev-unknown",
				Commit:    unknown,
				BuildDate: unknown,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := resolve(tt.version, tt.commit, tt.buildDate, tt.vcs)
			assert.Equal(t, tt.want.Version, got.Version)
			assert.Equal(t, tt.want.Commit, got.Commit)
			assert.Equal(t, tt.want.BuildDate, got.BuildDate)
			assert.Equal(t, runtime.Version(), got.GoVersion)
			assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, got.Platform)
		})
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(UserAgent(), "roster-sync/"))
}
