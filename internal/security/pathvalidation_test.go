package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "reports")
	unsafeDir := filepath.Join(tmpDir, "private")
	require.NoError(t, os.MkdirAll(safeDir, 0o755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(unsafeDir, "secret.txt"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(safeDir, "summary.txt"), []byte("ok"), 0o644))
	require.NoError(t, os.Symlink(unsafeDir, filepath.Join(safeDir, "evil-symlink")))

	tests := []struct {
		name      string
		filePath  string
		wantError bool
	}{
		{"existing file", filepath.Join(safeDir, "summary.txt"), false},
		{"new file", filepath.Join(safeDir, "dashboard.html"), false},
		{"nested new file", filepath.Join(safeDir, "a", "b.png"), false},
		{"parent traversal", filepath.Join(safeDir, "..", "private", "secret.txt"), true},
		{"absolute outside", filepath.Join(unsafeDir, "secret.txt"), true},
		{"symlink escape", filepath.Join(safeDir, "evil-symlink", "secret.txt"), true},
		{"symlink escape new file", filepath.Join(safeDir, "evil-symlink", "new.txt"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, safeDir)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(safeDir, "x"), filepath.Join(tmpDir, "missing")))
}

func TestIsSafeFilename(t *testing.T) {
	for name, want := range map[string]bool{
		"summary.txt":        true,
		"confirmed_2019.png": true,
		"dashboard-v2.html":  true,
		"":                   false,
		".hidden":            false,
		"..":                 false,
		"../etc/passwd":      false,
		"a/b.txt":            false,
		`a\b.txt`:            false,
		"name with space":    false,
	} {
		assert.Equal(t, want, IsSafeFilename(name), "%q", name)
	}
}

func TestResolveReportPath(t *testing.T) {
	dir := t.TempDir()

	path, err := ResolveReportPath(dir, "summary.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "summary.txt"), path)

	_, err = ResolveReportPath(dir, "../secret")
	assert.True(t, errors.Is(err, ErrUnsafeName), "got %v", err)

	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))
	_, err = ResolveReportPath(dir, "link")
	assert.Error(t, err)
}
