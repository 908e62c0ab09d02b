package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRenditionKey(t *testing.T) {
	tests := []struct {
		size string
		key  string
		want string
	}{
		{size: "original", key: "images/a.jpg", want: "images/a.jpg"},
		{size: "", key: "images/a.jpg", want: "images/a.jpg"},
		{size: "large", key: "images/a.jpg", want: "renditions/large/images/a.jpg"},
		{size: "small", key: "b.png", want: "renditions/small/b.png"},
	}
	for _, tc := range tests {
		if got := RenditionKey(tc.size, tc.key); got != tc.want {
			t.Errorf("RenditionKey(%q, %q) = %q, want %q", tc.size, tc.key, got, tc.want)
		}
	}
}

func TestStaticStorage(t *testing.T) {
	s := NewStaticStorage("http://localhost:8000/media/")
	if got, want := s.GetURL("/images/a.jpg"), "http://localhost:8000/media/images/a.jpg"; got != want {
		t.Errorf("GetURL = %q, want %q", got, want)
	}
	err := s.Upload(context.Background(), "k", strings.NewReader("x"), 1, "text/csv")
	if !errors.Is(err, ErrUploadUnsupported) {
		t.Errorf("Upload err = %v, want ErrUploadUnsupported", err)
	}
}

func TestDetectStorageType(t *testing.T) {
	tests := map[string]StorageType{
		"":                                     StorageTypeStatic,
		"https://abc.r2.cloudflarestorage.com": StorageTypeR2,
		"s3.eu-west-1.amazonaws.com":           StorageTypeS3,
		"localhost:9000":                       StorageTypeS3Compatible,
	}
	for endpoint, want := range tests {
		if got := detectStorageType(endpoint); got != want {
			t.Errorf("detectStorageType(%q) = %s, want %s", endpoint, got, want)
		}
	}
}

func TestS3StorageURL(t *testing.T) {
	s, err := NewStorage(&S3Config{
		Type:      StorageTypeS3Compatible,
		Endpoint:  "http://localhost:9000/",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "media",
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	if got, want := s.GetURL("images/a.jpg"), "http://localhost:9000/media/images/a.jpg"; got != want {
		t.Errorf("GetURL = %q, want %q", got, want)
	}

	cdn, err := NewS3Storage(&S3Config{Type: StorageTypeR2, Endpoint: "abc.r2.cloudflarestorage.com", UseSSL: true, Bucket: "media", PublicURL: "https://cdn.example.com/"})
	if err != nil {
		t.Fatalf("NewS3Storage: %v", err)
	}
	if got, want := cdn.GetURL("a.jpg"), "https://cdn.example.com/a.jpg"; got != want {
		t.Errorf("GetURL = %q, want %q", got, want)
	}
}
