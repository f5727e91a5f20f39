package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/qforge/casegen/internal/session"
)

// Upload kinds accepted by the generation workflow.
const (
	KindCaseTemplate    = "case_template"
	KindHistoryCases    = "history_cases"
	KindRequirementsDoc = "requirements_doc"
)

var ErrFileTooLarge = errors.New("uploaded file exceeds the size limit")

var allowedExtensions = map[string]bool{
	".xml": true,
	".txt": true,
	".md":  true,
}

// Uploads writes incoming template files under a per-session directory.
type Uploads struct {
	root     string
	maxBytes int64
}

func NewUploads(root string, maxBytes int64) (*Uploads, error) {
	if strings.TrimSpace(root) == "" {
		root = "uploads"
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &Uploads{root: root, maxBytes: maxBytes}, nil
}

// Save stores one upload and returns its reference. The stored filename is
// the generated id plus the original extension, so caller-supplied names
// never touch the filesystem.
func (u *Uploads) Save(sessionID, kind, name string, r io.Reader) (session.FileRef, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return session.FileRef{}, fmt.Errorf("unsupported file extension %q", ext)
	}

	dir := filepath.Join(u.root, sanitize(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return session.FileRef{}, fmt.Errorf("create session dir: %w", err)
	}

	id := "file_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	path := filepath.Join(dir, id+ext)

	f, err := os.Create(path)
	if err != nil {
		return session.FileRef{}, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	// Read one byte past the limit to tell "at limit" from "over it".
	n, err := io.Copy(f, io.LimitReader(r, u.maxBytes+1))
	if err != nil {
		os.Remove(path)
		return session.FileRef{}, fmt.Errorf("write upload: %w", err)
	}
	if n > u.maxBytes {
		os.Remove(path)
		return session.FileRef{}, ErrFileTooLarge
	}

	return session.FileRef{
		ID:   id,
		Type: kind,
		Name: filepath.Base(name),
		Path: path,
		Size: n,
	}, nil
}

// Read returns the contents of a previously saved upload.
func (u *Uploads) Read(ref session.FileRef) ([]byte, error) {
	return os.ReadFile(ref.Path)
}

// RemoveSession deletes every upload belonging to one session.
func (u *Uploads) RemoveSession(sessionID string) error {
	return os.RemoveAll(filepath.Join(u.root, sanitize(sessionID)))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
