package cloudinary

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUploadPNGSignsRequest(t *testing.T) {
	var form map[string]string
	var file []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1_1/demo/image/upload" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Error(err)
			return
		}
		form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Error(err)
			return
		}
		file, _ = io.ReadAll(f)
		fmt.Fprint(w, `{"public_id":"tickets/a-1","secure_url":"https://cdn.example/a-1.png","bytes":4}`)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "tickets")
	c.Endpoint = srv.URL
	c.Now = func() time.Time { return time.Unix(1718391600, 0) }

	res, err := c.UploadPNG(context.Background(), []byte("\x89PNG"), "a-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.SecureURL != "https://cdn.example/a-1.png" {
		t.Errorf("url = %s", res.SecureURL)
	}
	if string(file) != "\x89PNG" {
		t.Errorf("file = %q", file)
	}

	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=tickets&overwrite=true&public_id=a-1&timestamp=1718391600secret")))
	if form["signature"] != want {
		t.Errorf("signature = %s, want %s", form["signature"], want)
	}
	if form["api_key"] != "key" {
		t.Errorf("api_key = %q", form["api_key"])
	}
}

func TestUploadPNGError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Invalid Signature"}}`)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.Endpoint = srv.URL
	_, err := c.UploadPNG(context.Background(), []byte("x"), "a-1")
	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want *UploadError", err)
	}
	if upErr.Status != http.StatusUnauthorized || upErr.Message != "Invalid Signature" {
		t.Errorf("upload error = %+v", upErr)
	}
	if (&Client{}).Configured() || !c.Configured() {
		t.Error("Configured")
	}
}
