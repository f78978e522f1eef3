package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

type FileUpload struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// UploadFile загружает файл в шлюз; полученный ID используется как upload_file_id.
func (c *Client) UploadFile(ctx context.Context, toolID, user string, f FileUpload) (*FileInfo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("user", userOrDefault(user)); err != nil {
		return nil, fmt.Errorf("error writing form: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("error creating file part: %w", err)
	}
	if _, err := io.Copy(part, f.Reader); err != nil {
		return nil, fmt.Errorf("error copying file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("error closing form: %w", err)
	}

	req, info, err := c.newRequest(ctx, toolID, http.MethodPost, "/files/upload", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	info.BodyKeys = []string{"file", "user"}

	var out FileInfo
	if err := c.doBlocking(req, info, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
