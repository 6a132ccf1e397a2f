package handlers

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"

	"crisishub/config"
)

var allowedImageExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
}

// saveUploadedImage stores the file under the uploads directory with a
// random name and returns the relative path. The original filename is
// only consulted for its extension.
func saveUploadedImage(cfg config.UploadsConfig, src io.Reader, origName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(origName))
	if _, ok := allowedImageExts[ext]; !ok {
		return "", errors.New("unsupported image type")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	name := id.String() + ext
	dst, err := os.Create(filepath.Join(cfg.Dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(src, cfg.MaxBytes)); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return name, nil
}
