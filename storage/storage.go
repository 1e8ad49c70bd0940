// Package storage persists received instances as Part 10 files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caio-sobreiro/dicomstore/dicom"
)

// ErrUnsafeUID is returned for UIDs that cannot be used as a path component.
var ErrUnsafeUID = errors.New("storage: UID is not a safe path component")

// Instance is a received data set together with the identifiers that place
// it on disk. Data is encoded in TransferSyntaxUID.
type Instance struct {
	SOPClassUID       string
	SOPInstanceUID    string
	StudyInstanceUID  string
	SeriesInstanceUID string
	TransferSyntaxUID string
	SourceAETitle     string
	Data              []byte
}

// Store persists instances. Implementations must be safe for concurrent use
// by several associations.
type Store interface {
	Store(ctx context.Context, inst *Instance) (location string, err error)
}

// CheckComponent rejects values that could escape or restructure the storage tree.
func CheckComponent(name, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: %s is empty", ErrUnsafeUID, name)
	case value == "." || strings.Contains(value, ".."):
		return fmt.Errorf("%w: %s %q contains a relative path element", ErrUnsafeUID, name, value)
	case strings.ContainsAny(value, `/\`+"\x00"):
		return fmt.Errorf("%w: %s %q contains a path separator", ErrUnsafeUID, name, value)
	}
	return nil
}

// FileStore writes <root>/<study>/<series>/<sop>.dcm. Files are written to a
// temporary name in the target directory and renamed into place, so a
// retransmitted instance replaces the previous file atomically.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore creates root if needed.
func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("storage: root directory not set")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileStore{root: root, logger: logger}, nil
}

// Root returns the storage root directory.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns where an instance is stored, after validating its UIDs.
func (s *FileStore) Path(study, series, sop string) (string, error) {
	for _, c := range []struct{ name, value string }{
		{"study instance UID", study},
		{"series instance UID", series},
		{"SOP instance UID", sop},
	} {
		if err := CheckComponent(c.name, c.value); err != nil {
			return "", err
		}
	}
	return filepath.Join(s.root, study, series, sop+".dcm"), nil
}

func (s *FileStore) Store(ctx context.Context, inst *Instance) (string, error) {
	path, err := s.Path(inst.StudyInstanceUID, inst.SeriesInstanceUID, inst.SOPInstanceUID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".incoming-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	meta := dicom.NewFileMeta(inst.SOPClassUID, inst.SOPInstanceUID, inst.TransferSyntaxUID, inst.SourceAETitle)
	if err := dicom.WritePart10(tmp, meta, inst.Data); err != nil {
		cleanup()
		return "", fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename into %s: %w", path, err)
	}

	s.logger.DebugContext(ctx, "Stored instance",
		"path", path,
		"sop_instance_uid", inst.SOPInstanceUID,
		"size_bytes", len(inst.Data))
	return path, nil
}

// DiscardStore accepts every instance without writing anything.
type DiscardStore struct{}

func (DiscardStore) Store(ctx context.Context, inst *Instance) (string, error) {
	return "", ctx.Err()
}
