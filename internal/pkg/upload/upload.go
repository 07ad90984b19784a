package upload

import (
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/KarinaMilko/Fullstack-ClassWork/internal/pkg/apperr"
)

// allowedTypes 允许落盘的图片类型，值为保存时使用的扩展名。
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Saver 把上传的图片保存到静态目录，文件名用 UUID 重新生成。
type Saver struct {
	root string
}

func NewSaver(root string) *Saver {
	return &Saver{root: root}
}

// Save 校验声明的 Content-Type 并保存文件，返回相对于静态根目录的文件名。
// 类型不在允许列表时返回 apperr.ErrUnsupportedMedia，此时不写入任何字节。
func (s *Saver) Save(fh *multipart.FileHeader) (string, error) {
	declared := fh.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", apperr.ErrUnsupportedMedia
	}
	ext, ok := allowedTypes[mediaType]
	if !ok {
		return "", apperr.ErrUnsupportedMedia
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.root, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return name, nil
}

// Remove 删除此前 Save 保存的文件，用于数据库写入失败后的孤儿清理。
// 文件已经不存在时不视为错误。
func (s *Saver) Remove(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
