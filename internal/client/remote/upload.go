package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// presignResponse is what the backend returns for an upload request.
type presignResponse struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
}

// UploadObject stores bytes in object storage and returns the public URL.
// The backend presigns a PUT for the given bucket/path and the client uploads
// directly; path uniqueness is the caller's responsibility.
//
// Failures come back as *UploadError. The recommended policy is to let the
// parent write proceed with an empty media reference and mark the entity
// upload-pending rather than abort.
func (c *Client) UploadObject(ctx context.Context, bucket, path string, data []byte) (string, error) {
	var presigned presignResponse
	body := map[string]string{"bucket": bucket, "path": path}
	if err := c.doJSON(ctx, http.MethodPost, "/api/storage/presign", body, &presigned); err != nil {
		return "", &UploadError{Bucket: bucket, Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", &UploadError{Bucket: bucket, Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &UploadError{Bucket: bucket, Path: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", &UploadError{Bucket: bucket, Path: path, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	return presigned.PublicURL, nil
}
