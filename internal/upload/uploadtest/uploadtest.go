// Package uploadtest builds multipart payloads for tests.
package uploadtest

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"testing"

	"comic-shelf/internal/upload"
)

// File is one file part of a multipart body.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Cover returns a small PNG cover part.
func Cover(name string) File {
	return File{Field: upload.FieldCover, Name: name, ContentType: "image/png", Data: []byte("cover:" + name)}
}

// Page returns a small JPEG page part.
func Page(name string) File {
	return File{Field: upload.FieldPages, Name: name, ContentType: "image/jpeg", Data: []byte("page:" + name)}
}

// Body encodes fields and files as multipart/form-data and returns the body
// together with its Content-Type header value.
func Body(t testing.TB, fields map[string]string, files ...File) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
		if f.ContentType != "" {
			h.Set("Content-Type", f.ContentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part %s: %v", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			t.Fatalf("write part %s: %v", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// Form parses the files into an upload.Form, exactly as a server would see them.
func Form(t testing.TB, files ...File) upload.Form {
	t.Helper()

	body, contentType := Body(t, nil, files...)
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("parse content type: %v", err)
	}
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("read multipart form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })

	return upload.Form{
		Cover: form.File[upload.FieldCover],
		Pages: form.File[upload.FieldPages],
	}
}

// ReadAll drains r, failing the test on error.
func ReadAll(t testing.TB, r io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}
