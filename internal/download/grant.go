package download

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

// Grant is scoped access to the destination directory. It is acquired
// before any filesystem operation on the destination and must be released
// on every exit path, including failures.
type Grant interface {
	Release()
}

// GrantProvider acquires destination-directory access for the lifetime of
// one download's write phase.
type GrantProvider interface {
	Acquire(dir string) (Grant, error)
}

// DirGrantProvider is the default provider: it ensures the destination
// directory exists and is writable. On platforms with scoped folder
// permissions a provider wrapping the platform bookmark API replaces it.
type DirGrantProvider struct {
	fs afero.Fs
}

// NewDirGrantProvider creates a provider backed by the given filesystem.
func NewDirGrantProvider(fs afero.Fs) *DirGrantProvider {
	return &DirGrantProvider{fs: fs}
}

// Acquire verifies the destination directory, creating it if needed.
func (p *DirGrantProvider) Acquire(dir string) (Grant, error) {
	if dir == "" {
		return nil, fmt.Errorf("download directory is not configured")
	}
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("download directory %s is not writable: %w", dir, err)
	}
	return &dirGrant{}, nil
}

// dirGrant releases at most once regardless of how many exit paths run.
type dirGrant struct {
	once sync.Once
}

func (g *dirGrant) Release() {
	g.once.Do(func() {})
}
