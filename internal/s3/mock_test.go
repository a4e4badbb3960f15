package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockAPI lets each test override the calls it cares about.
type mockAPI struct {
	CreateMultipartUploadFunc   func(context.Context, *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error)
	UploadPartFunc              func(context.Context, *s3.UploadPartInput) (*s3.UploadPartOutput, error)
	CompleteMultipartUploadFunc func(context.Context, *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUploadFunc    func(context.Context, *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error)
	ListObjectsV2Func           func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	GetObjectFunc               func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	PutObjectFunc               func(context.Context, *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	HeadObjectFunc              func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	DeleteObjectFunc            func(context.Context, *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
	HeadBucketFunc              func(context.Context, *s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
	CreateBucketFunc            func(context.Context, *s3.CreateBucketInput) (*s3.CreateBucketOutput, error)
}

var _ API = (*mockAPI)(nil)

func (m *mockAPI) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	if m.CreateMultipartUploadFunc != nil {
		return m.CreateMultipartUploadFunc(ctx, in)
	}
	return &s3.CreateMultipartUploadOutput{}, nil
}

func (m *mockAPI) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if m.UploadPartFunc != nil {
		return m.UploadPartFunc(ctx, in)
	}
	return &s3.UploadPartOutput{}, nil
}

func (m *mockAPI) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	if m.CompleteMultipartUploadFunc != nil {
		return m.CompleteMultipartUploadFunc(ctx, in)
	}
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *mockAPI) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	if m.AbortMultipartUploadFunc != nil {
		return m.AbortMultipartUploadFunc(ctx, in)
	}
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (m *mockAPI) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.ListObjectsV2Func != nil {
		return m.ListObjectsV2Func(ctx, in)
	}
	return &s3.ListObjectsV2Output{}, nil
}

func (m *mockAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.GetObjectFunc != nil {
		return m.GetObjectFunc(ctx, in)
	}
	return &s3.GetObjectOutput{}, nil
}

func (m *mockAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, in)
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockAPI) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.HeadObjectFunc != nil {
		return m.HeadObjectFunc(ctx, in)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.DeleteObjectFunc != nil {
		return m.DeleteObjectFunc(ctx, in)
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockAPI) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.HeadBucketFunc != nil {
		return m.HeadBucketFunc(ctx, in)
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockAPI) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if m.CreateBucketFunc != nil {
		return m.CreateBucketFunc(ctx, in)
	}
	return &s3.CreateBucketOutput{}, nil
}
