package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	info, err := s.Put(ctx, "nests/1/abc.png", strings.NewReader("imagedata"), PutOptions{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len("imagedata")) || info.ContentType != "image/png" {
		t.Fatalf("put info = %+v", info)
	}

	got, rc, err := s.Get(ctx, "nests/1/abc.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "imagedata" || got.Key != "nests/1/abc.png" {
		t.Fatalf("got %q info %+v", data, got)
	}

	ok, err := s.Delete(ctx, "nests/1/abc.png")
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	ok, err = s.Delete(ctx, "nests/1/abc.png")
	if err != nil || ok {
		t.Fatalf("repeat Delete: ok=%v err=%v", ok, err)
	}
	if _, _, err := s.Get(ctx, "nests/1/abc.png"); err == nil {
		t.Fatal("Get after delete succeeded")
	}
}

func TestMemoryStorePresignUnsupported(t *testing.T) {
	s := NewMemory()
	if _, err := s.PresignURL(context.Background(), "k", 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("PresignURL = %v, want ErrUnsupported", err)
	}
}
