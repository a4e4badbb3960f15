package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// fakeCore is an in-memory single-bucket server behind the API interface.
type fakeCore struct {
	bucket  string
	objects map[string][]byte
	meta    map[string]minio.PutObjectOptions
	uploads map[string]map[int][]byte
	nextID  int

	aborted   []string
	partCalls []int
	listCalls []string
	failPart  error
}

var _ API = (*fakeCore)(nil)

func newFakeCore(bucket string) *fakeCore {
	return &fakeCore{
		bucket:  bucket,
		objects: map[string][]byte{},
		meta:    map[string]minio.PutObjectOptions{},
		uploads: map[string]map[int][]byte{},
	}
}

func noSuchKey(key string) error {
	return minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist.", Key: key, StatusCode: http.StatusNotFound}
}

func (f *fakeCore) checkBucket(bucket string) error {
	if bucket != f.bucket {
		return minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound, BucketName: bucket}
	}
	return nil
}

func (f *fakeCore) NewMultipartUpload(_ context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error) {
	if err := f.checkBucket(bucket); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = map[int][]byte{}
	f.meta[object] = opts
	return id, nil
}

func (f *fakeCore) PutObjectPart(_ context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, _ minio.PutObjectPartOptions) (minio.ObjectPart, error) {
	f.partCalls = append(f.partCalls, partID)
	if f.failPart != nil {
		return minio.ObjectPart{}, f.failPart
	}
	parts, ok := f.uploads[uploadID]
	if !ok {
		return minio.ObjectPart{}, minio.ErrorResponse{Code: "NoSuchUpload", StatusCode: http.StatusNotFound}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return minio.ObjectPart{}, err
	}
	if int64(len(b)) != size {
		return minio.ObjectPart{}, fmt.Errorf("size mismatch %d != %d", len(b), size)
	}
	parts[partID] = b
	return minio.ObjectPart{PartNumber: partID, ETag: fmt.Sprintf("etag-%d", partID), Size: size}, nil
}

func (f *fakeCore) CompleteMultipartUpload(_ context.Context, bucket, object, uploadID string, parts []minio.CompletePart, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	stored, ok := f.uploads[uploadID]
	if !ok {
		return minio.UploadInfo{}, minio.ErrorResponse{Code: "NoSuchUpload", StatusCode: http.StatusNotFound}
	}
	var buf bytes.Buffer
	for _, p := range parts {
		if p.ETag != fmt.Sprintf("etag-%d", p.PartNumber) {
			return minio.UploadInfo{}, minio.ErrorResponse{Code: "InvalidPart", StatusCode: http.StatusBadRequest}
		}
		buf.Write(stored[p.PartNumber])
	}
	f.objects[object] = buf.Bytes()
	delete(f.uploads, uploadID)
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(buf.Len())}, nil
}

func (f *fakeCore) AbortMultipartUpload(_ context.Context, _, _, uploadID string) error {
	f.aborted = append(f.aborted, uploadID)
	delete(f.uploads, uploadID)
	return nil
}

func (f *fakeCore) ListObjectsV2(bucketName, objectPrefix, _, continuationToken, _ string, maxkeys int) (minio.ListBucketV2Result, error) {
	f.listCalls = append(f.listCalls, continuationToken)
	if err := f.checkBucket(bucketName); err != nil {
		return minio.ListBucketV2Result{}, err
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, objectPrefix) && k > continuationToken {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var res minio.ListBucketV2Result
	for i, k := range keys {
		if i == maxkeys {
			res.IsTruncated = true
			res.NextContinuationToken = keys[i-1]
			break
		}
		res.Contents = append(res.Contents, minio.ObjectInfo{Key: k, Size: int64(len(f.objects[k]))})
	}
	return res, nil
}

func (f *fakeCore) GetObject(_ context.Context, bucket, object string, _ minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error) {
	if err := f.checkBucket(bucket); err != nil {
		return nil, minio.ObjectInfo{}, nil, err
	}
	b, ok := f.objects[object]
	if !ok {
		return nil, minio.ObjectInfo{}, nil, noSuchKey(object)
	}
	return io.NopCloser(bytes.NewReader(b)), minio.ObjectInfo{Key: object, Size: int64(len(b))}, http.Header{}, nil
}

func (f *fakeCore) PutObject(_ context.Context, bucket, object string, data io.Reader, size int64, _, _ string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if err := f.checkBucket(bucket); err != nil {
		return minio.UploadInfo{}, err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[object] = b
	f.meta[object] = opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeCore) StatObject(_ context.Context, bucket, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	b, ok := f.objects[object]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	}
	return minio.ObjectInfo{Key: object, Size: int64(len(b)), LastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}, nil
}

func (f *fakeCore) RemoveObject(_ context.Context, _, object string, _ minio.RemoveObjectOptions) error {
	delete(f.objects, object)
	return nil
}

func (f *fakeCore) BucketExists(_ context.Context, bucket string) (bool, error) {
	return bucket == f.bucket, nil
}

func (f *fakeCore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	if bucket == f.bucket {
		return minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou", StatusCode: http.StatusConflict}
	}
	f.bucket = bucket
	return nil
}
