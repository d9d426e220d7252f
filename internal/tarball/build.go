package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// File описывает один файл архива. Mode 0 означает 0600: в архивах лежат приватные ключи.
type File struct {
	Name string
	Data []byte
	Mode int64
}

// Build собирает детерминированный tar.gz: одинаковый набор файлов даёт
// байт-в-байт одинаковый архив. Возвращает архив и sha256 в hex.
func Build(files []File) ([]byte, string, error) {
	sorted := make([]File, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		name := clean(f.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, "", fmt.Errorf("tarball: duplicate entry %q", name)
		}
		seen[name] = struct{}{}
		f.Name = name
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	// детерминируем gzip-заголовок
	gz.Name = ""
	gz.Comment = ""
	gz.ModTime = time.Unix(0, 0)
	tw := tar.NewWriter(gz)

	for _, f := range sorted {
		mode := f.Mode
		if mode == 0 {
			mode = 0o600
		}
		hdr := &tar.Header{
			Name:    f.Name,
			Mode:    mode,
			Size:    int64(len(f.Data)),
			ModTime: time.Unix(0, 0),
			Format:  tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return nil, "", err
		}
		if _, err := tw.Write(f.Data); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return nil, "", err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, "", err
	}
	if err := gz.Close(); err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}

// без ведущего слэша, без выхода за корень архива
func clean(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	name = strings.TrimLeft(name, "/")
	if name == "." {
		return ""
	}
	return name
}
