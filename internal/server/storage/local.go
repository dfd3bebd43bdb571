package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/sitevisit/internal/filex"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
)

// Local writes photos to <root>/<folder>/<random>.<ext>.
type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, publicBaseURL string) *Local {
	return &Local{root: root, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (l *Local) Mode() Mode { return ModeLocal }

// Root is the directory files are written under.
func (l *Local) Root() string { return l.root }

func (l *Local) Store(ctx context.Context, data []byte, ext, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir, err := filex.EnsureSubdDir(l.root, SafeSegment(folder))
	if err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}

	name := randomName(cleanExt(ext))
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}

	if l.baseURL != "" {
		return l.baseURL + "/" + SafeSegment(folder) + "/" + name, nil
	}
	return full, nil
}

// Discard deletes a file previously returned by Store. References outside
// the root are refused; a file that is already gone is not an error.
func (l *Local) Discard(ctx context.Context, ref string) error {
	full, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("discard photo: %w", err)
	}
	return nil
}

func (l *Local) resolve(ref string) (string, error) {
	full := ref
	if l.baseURL != "" && strings.HasPrefix(ref, l.baseURL+"/") {
		full = filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(ref, l.baseURL+"/")))
	}

	root, err := filepath.Abs(l.root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("reference %q is outside storage root", ref)
	}
	return abs, nil
}

func (l *Local) IssueUploadSlot(context.Context, UploadRequest) (*models.UploadSlot, error) {
	return nil, modeError(ModeLocal, "upload slots")
}

func (l *Local) IssueDownloadSlot(context.Context, string) (*models.DownloadSlot, error) {
	return nil, modeError(ModeLocal, "download slots")
}
