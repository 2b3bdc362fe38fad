package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStorage writes uploads under dir and serves them below publicPrefix.
type LocalStorage struct {
	dir          string
	publicPrefix string
}

func NewLocalStorage(dir, publicPrefix string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStorage{dir: dir, publicPrefix: "/" + strings.Trim(publicPrefix, "/")}, nil
}

func (s *LocalStorage) UploadImage(_ context.Context, image Image) (string, error) {
	if len(image.Data) == 0 {
		return "", fmt.Errorf("empty image")
	}

	name := uuid.NewString() + image.Extension
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, image.Data, 0o644); err != nil {
		return "", fmt.Errorf("write upload %s: %w", name, err)
	}

	return s.publicPrefix + "/" + name, nil
}

// FileServer serves stored uploads without directory listings.
func (s *LocalStorage) FileServer() http.Handler {
	files := http.StripPrefix(s.publicPrefix+"/", http.FileServer(http.Dir(s.dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}
