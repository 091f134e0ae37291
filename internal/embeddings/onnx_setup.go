//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ONNXRuntimeVersion is the runtime release the fastembed-go binding loads.
const ONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform is returned for OS/arch pairs with no runtime release.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// onnxInstaller fetches the ONNX runtime shared library into dir.
type onnxInstaller struct {
	version string
	goos    string
	goarch  string
	dir     string
	baseURL string
	client  *http.Client
}

func newONNXInstaller() *onnxInstaller {
	return &onnxInstaller{
		version: ONNXRuntimeVersion,
		goos:    runtime.GOOS,
		goarch:  runtime.GOARCH,
		dir:     filepath.Join(defaultCacheRoot(), "lib"),
		baseURL: "https://github.com/microsoft/onnxruntime/releases/download",
		client:  http.DefaultClient,
	}
}

// defaultCacheRoot is ~/.cache/docrag, or ./.docrag-cache without a home.
func defaultCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docrag-cache"
	}
	return filepath.Join(home, ".cache", "docrag")
}

// platform returns the release archive suffix, such as "linux-x64".
func (i *onnxInstaller) platform() (string, error) {
	switch i.goos + "/" + i.goarch {
	case "linux/amd64":
		return "linux-x64", nil
	case "linux/arm64":
		return "linux-aarch64", nil
	case "darwin/amd64":
		return "osx-x86_64", nil
	case "darwin/arm64":
		return "osx-arm64", nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, i.goos, i.goarch)
}

func (i *onnxInstaller) libraryName() string {
	if i.goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// installed returns the managed library path, or "" when it is absent.
func (i *onnxInstaller) installed() string {
	p := filepath.Join(i.dir, i.libraryName())
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func (i *onnxInstaller) archiveURL(platform string) string {
	return fmt.Sprintf("%s/v%s/onnxruntime-%s-%s.tgz", i.baseURL, i.version, platform, i.version)
}

// install downloads the release archive and unpacks its lib/ directory.
func (i *onnxInstaller) install(ctx context.Context) error {
	platform, err := i.platform()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(i.dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", i.dir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.archiveURL(platform), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading ONNX runtime: status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, i.version)
	if err := i.unpack(resp.Body, prefix); err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}
	return nil
}

// unpack copies regular files and symlinks under prefix into i.dir, flattened.
func (i *onnxInstaller) unpack(r io.Reader, prefix string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	lib := i.libraryName()
	found := false
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		base := filepath.Base(name)
		dest := filepath.Join(i.dir, base)
		switch hdr.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			continue
		}
		if base == lib || strings.HasPrefix(base, lib+".") {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("library %s not found in archive", lib)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ensure resolves the runtime library: ONNX_PATH first, then the managed
// install, then a fresh download.
func (i *onnxInstaller) ensure(ctx context.Context) (string, error) {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p, nil
	}
	if p := i.installed(); p != "" {
		return p, nil
	}
	if err := i.install(ctx); err != nil {
		return "", fmt.Errorf("failed to install ONNX runtime v%s for %s/%s (set ONNX_PATH to use a local install): %w",
			i.version, i.goos, i.goarch, err)
	}
	p := i.installed()
	if p == "" {
		return "", errors.New("ONNX runtime installed but library not found")
	}
	return p, nil
}

// EnsureONNXRuntime returns the runtime library path, downloading it when
// missing, and exports ONNX_PATH for fastembed-go.
func EnsureONNXRuntime(ctx context.Context) (string, error) {
	p, err := newONNXInstaller().ensure(ctx)
	if err != nil {
		return "", err
	}
	if err := os.Setenv("ONNX_PATH", p); err != nil {
		return "", fmt.Errorf("setting ONNX_PATH: %w", err)
	}
	return p, nil
}
