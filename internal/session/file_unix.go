//go:build !windows

package session

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeFileAtomic replaces path with data: temp file, fsync, rename
func writeFileAtomic(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
