package recipe

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/go-archive"
	"github.com/moby/patternmatcher/ignorefile"
)

// DockerfileName is the path the rendered Dockerfile gets inside the build context.
const DockerfileName = ".indi-stack.Dockerfile"

// ReadDockerignore returns the exclude patterns in dir/.dockerignore, if any.
func ReadDockerignore(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read .dockerignore in %q: %w", dir, err)
	}
	return patterns, nil
}

// BuildContext tars dir (honoring .dockerignore) and injects dockerfile as
// DockerfileName. An empty dir yields a context holding only the Dockerfile.
func BuildContext(dir string, dockerfile string) (io.ReadCloser, error) {
	modTime := time.Now()
	mods := map[string]archive.TarModifierFunc{
		DockerfileName: func(_ string, _ *tar.Header, _ io.Reader) (*tar.Header, []byte, error) {
			return &tar.Header{
				Name:     DockerfileName,
				Mode:     0o600,
				ModTime:  modTime,
				Typeflag: tar.TypeReg,
			}, []byte(dockerfile), nil
		},
	}

	if dir == "" {
		return archive.ReplaceFileTarWrapper(io.NopCloser(bytes.NewReader(nil)), mods), nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat build context %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build context %q is not a directory", dir)
	}

	excludes, err := ReadDockerignore(dir)
	if err != nil {
		return nil, err
	}

	src, err := archive.TarWithOptions(dir, &archive.TarOptions{
		ExcludePatterns: excludes,
	})
	if err != nil {
		return nil, fmt.Errorf("tar build context %q: %w", dir, err)
	}

	return archive.ReplaceFileTarWrapper(src, mods), nil
}
