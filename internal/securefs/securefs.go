package securefs

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// GetLogger returns the securefs module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("securefs")
}

// SecureFS confines filesystem operations to one base directory using os.Root.
// Traversal through "../" components or symlinks pointing outside the base
// is rejected at the OS level.
type SecureFS struct {
	baseDir string
	root    *os.Root
}

// New creates baseDir if needed and opens it as a sandbox root.
func New(baseDir string) (*SecureFS, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem sandbox: %w", err)
	}

	return &SecureFS{baseDir: absPath, root: root}, nil
}

// BaseDir returns the absolute sandbox directory.
func (sfs *SecureFS) BaseDir() string {
	return sfs.baseDir
}

// IsPathWithinBase reports whether targetPath is basePath or below it,
// resolving symlinks for paths that exist.
func IsPathWithinBase(basePath, targetPath string) (bool, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return false, fmt.Errorf("failed to resolve base path: %w", err)
	}
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false, fmt.Errorf("failed to resolve target path: %w", err)
	}
	absBase = filepath.Clean(absBase)
	absTarget = filepath.Clean(absTarget)

	if _, err := os.Stat(absTarget); os.IsNotExist(err) {
		return isPathPrefix(absBase, absTarget), nil
	}

	if resolved, err := filepath.EvalSymlinks(absBase); err == nil {
		absBase = resolved
	}
	if resolved, err := filepath.EvalSymlinks(absTarget); err == nil {
		absTarget = resolved
	}
	return isPathPrefix(filepath.Clean(absBase), filepath.Clean(absTarget)), nil
}

func isPathPrefix(absBase, absTarget string) bool {
	return strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) || absTarget == absBase
}

// RelativePath converts an absolute or CWD-relative path into a path relative
// to the base directory, rejecting anything outside it.
func (sfs *SecureFS) RelativePath(path string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	within, err := IsPathWithinBase(sfs.baseDir, absPath)
	if err != nil {
		return "", fmt.Errorf("path validation error: %w", err)
	}
	if !within {
		return "", fmt.Errorf("%w: path %s is outside allowed directory %s", ErrPathTraversal, path, sfs.baseDir)
	}

	relPath, err := filepath.Rel(sfs.baseDir, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}
	return relPath, nil
}

// ValidateRelativePath cleans a path that is supposed to be relative to the base.
func (sfs *SecureFS) ValidateRelativePath(relPath string) (string, error) {
	cleaned := filepath.Clean(relPath)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%w: path must be relative, got %q", ErrInvalidPath, relPath)
	}
	if !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, relPath)
	}
	return cleaned, nil
}

// MkdirAll creates a directory and any missing parents inside the sandbox.
func (sfs *SecureFS) MkdirAll(path string, perm os.FileMode) error {
	relPath, err := sfs.RelativePath(path)
	if err != nil {
		return err
	}
	if relPath == "." {
		return nil
	}

	current := ""
	for component := range strings.SplitSeq(relPath, string(filepath.Separator)) {
		if component == "" {
			continue
		}
		current = filepath.Join(current, component)
		if err := sfs.root.Mkdir(current, perm); err != nil && !os.IsExist(err) {
			return fmt.Errorf("failed to create directory component %s: %w", current, err)
		}
	}
	return nil
}

// Remove removes a file.
func (sfs *SecureFS) Remove(path string) error {
	relPath, err := sfs.RelativePath(path)
	if err != nil {
		return err
	}
	return sfs.root.Remove(relPath)
}

// OpenFile opens a file inside the sandbox.
func (sfs *SecureFS) OpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	relPath, err := sfs.RelativePath(path)
	if err != nil {
		return nil, err
	}
	return sfs.root.OpenFile(relPath, flag, perm)
}

// Open opens a file for reading.
func (sfs *SecureFS) Open(path string) (*os.File, error) {
	return sfs.OpenFile(path, os.O_RDONLY, 0)
}

// Stat returns file info.
func (sfs *SecureFS) Stat(path string) (fs.FileInfo, error) {
	relPath, err := sfs.RelativePath(path)
	if err != nil {
		return nil, err
	}
	return sfs.root.Stat(relPath)
}

// Exists reports whether path exists. Validation failures are returned as errors.
func (sfs *SecureFS) Exists(path string) (bool, error) {
	relPath, err := sfs.RelativePath(path)
	if err != nil {
		return false, err
	}

	_, err = sfs.root.Stat(relPath)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// WriteFrom creates or truncates path and copies r into it.
func (sfs *SecureFS) WriteFrom(path string, r io.Reader, perm os.FileMode) (int64, error) {
	file, err := sfs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// WriteFile writes data to path.
func (sfs *SecureFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	_, err := sfs.WriteFrom(path, strings.NewReader(string(data)), perm)
	return err
}

// ReadFile returns the contents of path.
func (sfs *SecureFS) ReadFile(path string) ([]byte, error) {
	file, err := sfs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			GetLogger().Warn("Failed to close file", logger.Error(err))
		}
	}()
	return io.ReadAll(file)
}

func mapOpenErrorToHTTP(err error, effectivePath string) *echo.HTTPError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("File not found: %s", effectivePath))
	case errors.Is(err, fs.ErrPermission) || errors.Is(err, ErrAccessDenied):
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	case errors.Is(err, ErrPathTraversal) || errors.Is(err, ErrInvalidPath):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid file path").SetInternal(err)
	default:
		GetLogger().Error("Unhandled error serving file",
			logger.String("path", effectivePath),
			logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Error serving file").SetInternal(err)
	}
}

func getContentType(path string) string {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}

// ServeRelativeFile writes the file at relPath, relative to the base, to the
// echo response. It is a sandboxed replacement for echo.Context.File.
func (sfs *SecureFS) ServeRelativeFile(c echo.Context, relPath string) error {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return mapOpenErrorToHTTP(err, relPath)
	}

	f, err := sfs.root.Open(validated)
	if err != nil {
		return mapOpenErrorToHTTP(err, validated)
	}
	defer func() {
		if err := f.Close(); err != nil {
			GetLogger().Warn("Failed to close file", logger.Error(err))
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get file info").SetInternal(err)
	}
	if !stat.Mode().IsRegular() {
		return mapOpenErrorToHTTP(ErrNotRegularFile, validated)
	}

	if c.Response().Header().Get(echo.HeaderContentType) == "" {
		c.Response().Header().Set(echo.HeaderContentType, getContentType(validated))
	}
	http.ServeContent(c.Response(), c.Request(), filepath.Base(validated), stat.ModTime(), f)
	return nil
}

// Close releases the sandbox root.
func (sfs *SecureFS) Close() error {
	if sfs.root != nil {
		return sfs.root.Close()
	}
	return nil
}
