package upload

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"S3Stream/internal/objstore"
)

type uploadedPart struct {
	number int32
	data   []byte
}

// fakeUploader records every call. failOn names a call ("initiate",
// "upload-part", "complete") that should fail; failPart restricts
// upload-part failures to one part number.
type fakeUploader struct {
	mu sync.Mutex

	initiated  int
	meta       objstore.Metadata
	parts      []uploadedPart
	completed  []objstore.Part
	completes  int
	aborted    []string
	failOn     string
	failPart   int32
	nextUpload int
}

var _ objstore.MultipartUploader = (*fakeUploader)(nil)

func (f *fakeUploader) Initiate(_ context.Context, _ objstore.Destination, meta objstore.Metadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "initiate" {
		return "", fmt.Errorf("initiate refused")
	}
	f.initiated++
	f.meta = meta
	f.nextUpload++
	return fmt.Sprintf("upload-%d", f.nextUpload), nil
}

func (f *fakeUploader) UploadPart(_ context.Context, _ objstore.Destination, _ string, partNumber int32, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "upload-part" && (f.failPart == 0 || f.failPart == partNumber) {
		return "", fmt.Errorf("part %d refused", partNumber)
	}
	f.parts = append(f.parts, uploadedPart{number: partNumber, data: bytes.Clone(body)})
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (f *fakeUploader) Complete(_ context.Context, _ objstore.Destination, _ string, parts []objstore.Part) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "complete" {
		return fmt.Errorf("complete refused")
	}
	f.completes++
	f.completed = append([]objstore.Part(nil), parts...)
	return nil
}

func (f *fakeUploader) Abort(_ context.Context, _ objstore.Destination, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, uploadID)
	return nil
}

func (f *fakeUploader) object() []byte {
	var out []byte
	for _, p := range f.parts {
		out = append(out, p.data...)
	}
	return out
}
