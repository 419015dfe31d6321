package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FSImageStore writes images to a local directory and serves them under
// BaseURL. Swappable for an object-store implementation behind ImageStore.
type FSImageStore struct {
	Dir     string
	BaseURL string
}

func (f *FSImageStore) Store(_ context.Context, data []byte) (string, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString()
	if err := os.WriteFile(filepath.Join(f.Dir, name), data, 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", f.BaseURL, name), nil
}
