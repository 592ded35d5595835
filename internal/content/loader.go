package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir walks a directory tree and parses every YAML pack in it. Invalid
// pack files fail the whole load; a missing directory yields no packs.
func LoadDir(rootDir string) ([]*Pack, error) {
	if _, err := os.Stat(rootDir); os.IsNotExist(err) {
		slog.Warn("content directory missing, nothing to load", "dir", rootDir)
		return nil, nil
	}

	var packs []*Pack
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read pack %s: %w", path, err)
		}
		pack, err := ParsePack(data)
		if err != nil {
			return fmt.Errorf("pack %s: %w", path, err)
		}
		packs = append(packs, pack)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("content packs loaded", "dir", rootDir, "packs", len(packs))
	return packs, nil
}
