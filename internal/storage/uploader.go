// Package storage uploads binary proof-of-payment and promo images to an
// external object store and hands back a stable URL.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"ticketly/internal/apperror"
)

// Uploader stores binary content and returns a publicly-resolvable URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, content []byte) (string, error)
}

// HTTPUploader posts multipart form data to an upload endpoint which
// answers {"url": "..."}.
type HTTPUploader struct {
	UploadURL string
	Client    *http.Client
}

func NewHTTPUploader(uploadURL string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		UploadURL: uploadURL,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, filename string, content []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", apperror.Wrap(apperror.KindUpstream, "upload failed", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", apperror.Wrap(apperror.KindUpstream, "upload failed", err)
	}
	if err := writer.Close(); err != nil {
		return "", apperror.Wrap(apperror.KindUpstream, "upload failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.UploadURL, &body)
	if err != nil {
		return "", apperror.Wrap(apperror.KindUpstream, "upload failed", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.Client.Do(req)
	if err != nil {
		return "", apperror.Wrap(apperror.KindUpstream, "upload failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apperror.Wrap(apperror.KindUpstream, "upload failed",
			fmt.Errorf("storage service returned status %d", resp.StatusCode))
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperror.Wrap(apperror.KindUpstream, "upload failed", err)
	}
	if result.URL == "" {
		return "", apperror.New(apperror.KindUpstream, "upload failed: storage service returned no url")
	}
	return result.URL, nil
}
