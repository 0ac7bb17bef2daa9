package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode"
)

// Operating system constants
const (
	OSDarwin  = "darwin"
	OSWindows = "windows"
	OSLinux   = "linux"
)

// File permissions
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Command constants
const (
	OpenCommand     = "open"
	ExplorerCommand = "explorer"
	XDGOpenCommand  = "xdg-open"
)

// Command parameters
const (
	MacOSSelectFlag    = "-R"
	WindowsSelectParam = "/select,"
)

// AppFolderName is the subfolder of the user's Downloads used by default
const AppFolderName = "CiliCili"

// File manager names
var (
	LinuxFileManagers = []string{"nautilus", "dolphin", "thunar", "nemo", "pcmanfm"}
)

// ErrNotExist is returned when a path handed to an open or copy operation is missing
var ErrNotExist = errors.New("path does not exist")

// startCommand launches a detached process; tests replace it
var startCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// lookPath resolves an executable; tests replace it
var lookPath = exec.LookPath

// OpenFolder opens a folder in the system file manager
func OpenFolder(folderPath string) error {
	info, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder %s: %w", folderPath, ErrNotExist)
	}
	if !info.IsDir() {
		folderPath = filepath.Dir(folderPath)
	}

	switch runtime.GOOS {
	case OSDarwin:
		return startCommand(OpenCommand, folderPath)
	case OSWindows:
		return startCommand(ExplorerCommand, folderPath)
	case OSLinux:
		return openDirLinux(folderPath)
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// OpenFileInManager opens the file manager with the file selected where the
// platform supports it, otherwise its parent directory.
func OpenFileInManager(filePath string) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("file %s: %w", filePath, ErrNotExist)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	switch runtime.GOOS {
	case OSDarwin:
		return startCommand(OpenCommand, MacOSSelectFlag, absPath)
	case OSWindows:
		return startCommand(ExplorerCommand, WindowsSelectParam+absPath)
	case OSLinux:
		// file selection is not standardized on Linux
		return openDirLinux(filepath.Dir(absPath))
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

func openDirLinux(dir string) error {
	if err := startCommand(XDGOpenCommand, dir); err == nil {
		return nil
	}
	for _, fm := range LinuxFileManagers {
		if _, err := lookPath(fm); err == nil {
			return startCommand(fm, dir)
		}
	}
	return fmt.Errorf("no suitable file manager found")
}

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "Downloads"), nil
}

// DefaultDownloadDir returns the app folder inside the user's Downloads
func DefaultDownloadDir() (string, error) {
	downloads, err := GetHomeDownloadsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(downloads, AppFolderName), nil
}

// SanitizeFilename keeps letters, digits, spaces, '-' and '_' and replaces
// everything else with '_'. An empty result becomes "video".
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "video"
	}
	return b.String()
}

// UniquePath returns dir/name, or dir/<stem>_N<ext> with the smallest N >= 1
// that does not exist yet.
func UniquePath(dir, name string) string {
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// CopyFileUnique copies src into dir under newName, or the source's base
// name when newName is empty. An existing target is never overwritten; a
// numeric suffix is added instead. It returns the written path.
func CopyFileUnique(src, dir, newName string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("source %s: %w", src, ErrNotExist)
		}
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	if err := CreateDirectoryIfNotExists(dir); err != nil {
		return "", fmt.Errorf("create target directory: %w", err)
	}

	name := newName
	if name == "" {
		name = filepath.Base(src)
	}
	target := UniquePath(dir, name)

	// O_EXCL so a file created between UniquePath and here is not clobbered
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, DefaultFilePermissions)
	if err != nil {
		return "", fmt.Errorf("create target: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(target)
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("close target: %w", err)
	}
	return target, nil
}

// FileInfo describes a local file
type FileInfo struct {
	Path     string
	Name     string
	Size     int64
	IsDir    bool
	Modified time.Time
}

// GetFileInfo stats path
func GetFileInfo(path string) (*FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s: %w", path, ErrNotExist)
		}
		return nil, err
	}
	return &FileInfo{
		Path:     path,
		Name:     st.Name(),
		Size:     st.Size(),
		IsDir:    st.IsDir(),
		Modified: st.ModTime(),
	}, nil
}
