package upload

import (
	"testing"

	"github.com/orgwarden/orgwarden/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		baseName string
		want     string
	}{
		{
			name:     "default prefix",
			prefix:   "",
			baseName: "20260829-103000",
			want:     "reports/20260829-103000",
		},
		{
			name:     "custom prefix",
			prefix:   "org-sync/reports",
			baseName: "20260829-103000",
			want:     "org-sync/reports/20260829-103000",
		},
		{
			name:     "trailing slash stripped",
			prefix:   "my-prefix/",
			baseName: "run123",
			want:     "my-prefix/run123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3UploadConfig{Prefix: tt.prefix},
			}
			got := u.resolvePrefix(tt.baseName)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{
			name:       "json file",
			path:       "reports/report.json",
			wantPrefix: "application/json",
		},
		{
			name:       "text file",
			path:       "reports/report.txt",
			wantPrefix: "text/plain",
		},
		{
			name:       "no extension",
			path:       "reports/report",
			wantPrefix: "application/octet-stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectContentType(tt.path)
			assert.Contains(t, got, tt.wantPrefix)
		})
	}
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(nil, &config.S3UploadConfig{})
	assert.Error(t, err)
}
