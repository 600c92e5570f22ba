package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FileUpload is a base64 encoded attachment.
type FileUpload struct {
	FileName  string
	Base64    string
	Doctype   string
	DocName   string
	FieldName string
	IsPrivate bool
}

// File is a stored attachment.
type File struct {
	Name     string `json:"name"`
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
}

type fileEnvelope struct {
	Message File `json:"message"`
}

// UploadFile stores an attachment through /api/method/upload_file.
func (c *Client) UploadFile(ctx context.Context, f FileUpload) (File, error) {
	form := url.Values{}
	form.Set("filename", f.FileName)
	form.Set("filedata", f.Base64)
	form.Set("decode_base64", "1")
	if f.Doctype != "" {
		form.Set("doctype", f.Doctype)
	}
	if f.DocName != "" {
		form.Set("docname", f.DocName)
	}
	if f.FieldName != "" {
		form.Set("fieldname", f.FieldName)
	}
	if f.IsPrivate {
		form.Set("is_private", "1")
	}

	var env fileEnvelope
	err := c.do(ctx, http.MethodPost, "/api/method/upload_file",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &env)
	if err != nil {
		return File{}, err
	}
	return env.Message, nil
}

// ServerTime reads the Date header of a lightweight endpoint on the record
// store. The header is truncated to the second, so the midpoint of that
// second is returned.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/api/method/ping", nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to reach record store: %w", err)
	}
	resp.Body.Close()

	date := resp.Header.Get("Date")
	if date == "" {
		return time.Time{}, fmt.Errorf("record store response has no Date header")
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid Date header %q: %w", date, err)
	}
	return t.Add(500 * time.Millisecond), nil
}
