package securefs

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFileName = "test.jpg"

func setupSecureFS(t *testing.T) (sfs *SecureFS, tempDir string) {
	t.Helper()
	tempDir = t.TempDir()

	sfs, err := New(tempDir)
	require.NoError(t, err, "Failed to create SecureFS")
	t.Cleanup(func() { _ = sfs.Close() })
	return sfs, tempDir
}

func TestWriteReadExists(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	path := filepath.Join(tempDir, testFileName)
	exists, err := sfs.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, sfs.WriteFile(path, []byte("jpeg"), 0o600))

	exists, err = sfs.Exists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := sfs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)
}

func TestWriteFrom(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	n, err := sfs.WriteFrom(filepath.Join(tempDir, testFileName), strings.NewReader("12345"), 0o600)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	path := filepath.Join(tempDir, testFileName)
	require.NoError(t, sfs.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, sfs.Remove(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMkdirAll(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	nested := filepath.Join(tempDir, "a", "b", "c")
	require.NoError(t, sfs.MkdirAll(nested, 0o750))
	require.NoError(t, sfs.MkdirAll(nested, 0o750), "existing directories are fine")

	info, err := sfs.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPathTraversalPrevention(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	outside := filepath.Join(tempDir, "..", "escape.txt")
	err := sfs.WriteFile(outside, []byte("nope"), 0o600)
	require.ErrorIs(t, err, ErrPathTraversal)

	_, err = sfs.Exists("/etc/passwd")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestSymlinkEscapeIsRejected(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	outsideDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outsideDir, "secret"), []byte("s"), 0o600))
	link := filepath.Join(tempDir, "link")
	if err := os.Symlink(outsideDir, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := sfs.ReadFile(filepath.Join(link, "secret"))
	assert.Error(t, err)
}

func TestValidateRelativePath(t *testing.T) {
	t.Parallel()
	sfs, _ := setupSecureFS(t)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"plain", "a.jpg", "a.jpg", nil},
		{"cleaned", "dir/../a.jpg", "a.jpg", nil},
		{"absolute", "/a.jpg", "", ErrInvalidPath},
		{"traversal", "../a.jpg", "", ErrPathTraversal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sfs.ValidateRelativePath(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServeRelativeFile(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)
	require.NoError(t, sfs.WriteFile(filepath.Join(tempDir, testFileName), []byte("jpeg-bytes"), 0o600))

	e := echo.New()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"existing", testFileName, http.StatusOK},
		{"missing", "missing.jpg", http.StatusNotFound},
		{"traversal", "../secret", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), rec)

			err := sfs.ServeRelativeFile(c, tt.path)
			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, "jpeg-bytes", rec.Body.String())
				assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.status, he.Code)
		})
	}
}
