package upload

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
)

func fileHeader(t *testing.T, filename, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	return form.File["photo"][0]
}

func TestSaveAllowedType(t *testing.T) {
	dir := t.TempDir()
	s := NewSaver(dir)

	name, err := s.Save(fileHeader(t, "avatar.png", "image/png", []byte("png-bytes")))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(name, ".png") {
		t.Errorf("saved name %q should keep the .png extension", name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("saved content = %q", data)
	}
}

func TestSaveStripsContentTypeParams(t *testing.T) {
	dir := t.TempDir()
	s := NewSaver(dir)

	if _, err := s.Save(fileHeader(t, "a.jpg", "image/jpeg; charset=binary", []byte("x"))); err != nil {
		t.Fatalf("Save with Content-Type params: %v", err)
	}
}

func TestSaveRejectsDisallowedType(t *testing.T) {
	dir := t.TempDir()
	s := NewSaver(dir)

	_, err := s.Save(fileHeader(t, "notes.txt", "text/plain", []byte("not an image")))
	if !errors.Is(err, apperr.ErrUnsupportedMedia) {
		t.Fatalf("err = %v, want ErrUnsupportedMedia", err)
	}

	// 拒绝发生在落盘之前，目录必须保持为空。
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory should stay empty, found %d entries", len(entries))
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s := NewSaver(dir)

	name, err := s.Save(fileHeader(t, "a.gif", "image/gif", []byte("gif")))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Remove(name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Error("file should be gone after Remove")
	}
	// 重复删除与空文件名都不报错。
	if err := s.Remove(name); err != nil {
		t.Errorf("second Remove: %v", err)
	}
	if err := s.Remove(""); err != nil {
		t.Errorf("Remove empty name: %v", err)
	}
}
