package widget

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploader_DestinationIsUniqueUnderFrozenClock(t *testing.T) {
	u := NewUploader(nil, nil, nil)
	frozen := time.Unix(1700000000, 0)
	u.now = func() time.Time { return frozen }

	a := u.destination("conv-1", "photo.png")
	b := u.destination("conv-1", "photo.png")

	assert.Equal(t, fmt.Sprintf("conv-1/%d-photo.png", frozen.UnixNano()), a)
	assert.Equal(t, fmt.Sprintf("conv-1/%d-photo.png", frozen.UnixNano()+1), b)
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"photo.png":              "photo.png",
		"my scan.pdf":            "my_scan.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\ann\notes.txt`: "notes.txt",
		"":                       "file",
		"/":                      "file",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanName(in), "cleanName(%q)", in)
	}
}

func TestUploader_WithoutStorageKeepsPreviews(t *testing.T) {
	u := NewUploader(nil, nil, nil)

	out := u.UploadAll(context.Background(), "conv-1", []LocalFile{
		{Name: "a.png", PreviewURL: "blob:a", Data: []byte("1234")},
	})

	require.Len(t, out, 1)
	assert.Equal(t, Attachment{Name: "a.png", URL: "blob:a", SizeBytes: 4}, out[0])
}

func TestUploader_PreservesOrder(t *testing.T) {
	storage := &fakeStorage{fail: map[string]bool{"2.txt": true}}
	u := NewUploader(storage, nil, nil)

	files := make([]LocalFile, 5)
	for i := range files {
		files[i] = LocalFile{Name: fmt.Sprintf("%d.txt", i), PreviewURL: fmt.Sprintf("blob:%d", i)}
	}
	out := u.UploadAll(context.Background(), "conv-1", files)

	require.Len(t, out, 5)
	for i, a := range out {
		assert.Equal(t, files[i].Name, a.Name)
		assert.Equal(t, i != 2, a.Durable, a.Name)
	}
	assert.Equal(t, "blob:2", out[2].URL)
	assert.Len(t, storage.paths, 5)
}

func TestUploader_EmptyBatch(t *testing.T) {
	u := NewUploader(&fakeStorage{}, nil, nil)
	out := u.UploadAll(context.Background(), "conv-1", nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
