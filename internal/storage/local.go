// Package storage はダウンロード成果物を置くローカルディレクトリを扱います。
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// ErrOutsideBaseDir は保存先ディレクトリ外のパスが指定されたことを表します。
var ErrOutsideBaseDir = errors.New("path is outside of the download directory")

// Local はローカルファイルシステム上の保存先です。
type Local struct {
	baseDir string
}

// File は配信用に開いた成果物です。呼び出し側で Close してください。
type File struct {
	*os.File
	Name        string
	Size        int64
	ContentType string
}

// NewLocal は Local を作成します。
func NewLocal(baseDir string) (*Local, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download dir: %w", err)
	}
	return &Local{baseDir: abs}, nil
}

// Dir は保存先ディレクトリの絶対パスを返します。
func (l *Local) Dir() string {
	return l.baseDir
}

// EnsureDir は保存先ディレクトリを作成します。
func (l *Local) EnsureDir() error {
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download dir %s: %w", l.baseDir, err)
	}
	return nil
}

// Open は成果物を開き、サイズと Content-Type を添えて返します。
func (l *Local) Open(path string) (*File, error) {
	if err := l.contains(path); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%s is a directory: %w", path, fs.ErrNotExist)
	}

	contentType := defaultContentType
	if mtype, err := mimetype.DetectReader(file); err == nil {
		contentType = mtype.String()
	}
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
	}

	return &File{
		File:        file,
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: contentType,
	}, nil
}

// Remove はファイルを削除します。存在しない場合はエラーにしません。
func (l *Local) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := l.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveAfter は delay 後にファイルを削除し、結果を done に渡します。
func (l *Local) RemoveAfter(path string, delay time.Duration, done func(error)) *time.Timer {
	return time.AfterFunc(delay, func() {
		err := l.Remove(path)
		if done != nil {
			done(err)
		}
	})
}

func (l *Local) contains(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(l.baseDir, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: %w", path, ErrOutsideBaseDir)
	}
	return nil
}
