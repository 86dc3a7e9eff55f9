package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DownloadPrefix copies every object under prefix whose extension is in exts
// into destDir, keeping the key layout below the prefix. A non-empty key
// downloads that single object instead of listing. Listed keys may come back
// relative to the prefix and are re-rooted before download.
func DownloadPrefix(ctx context.Context, client ObjectStorage, prefix, key, destDir string, exts ...string) ([]string, error) {
	var keys []string

	if key != "" {
		keys = []string{resolveObjectKey(prefix, key)}
	} else {
		listPrefix := strings.TrimSpace(prefix)
		objects, err := client.ListObjects(ctx, listPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects for prefix %s: %w", listPrefix, err)
		}
		for _, obj := range objects {
			if hasExt(obj.Key, exts) {
				keys = append(keys, resolveObjectKey(listPrefix, obj.Key))
			}
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no files found for prefix %s", prefix)
	}

	localPaths := make([]string, 0, len(keys))
	for _, k := range keys {
		localPath := filepath.Join(destDir, objectRelativePath(prefix, k))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare directory for %s: %w", localPath, err)
		}
		if err := client.DownloadObject(ctx, k, localPath); err != nil {
			return nil, err
		}
		localPaths = append(localPaths, localPath)
	}

	sort.Strings(localPaths)
	return localPaths, nil
}

func hasExt(key string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	lower := strings.ToLower(key)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func resolveObjectKey(prefix, key string) string {
	if prefix == "" {
		return strings.TrimPrefix(key, "/")
	}

	prefixTrimmed := strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	keyTrimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")

	if strings.HasPrefix(keyTrimmed, prefixTrimmed) {
		return keyTrimmed
	}
	return prefixTrimmed + "/" + keyTrimmed
}

func objectRelativePath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	prefixTrimmed := strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	rel := strings.TrimPrefix(key, prefixTrimmed+"/")
	if rel == "" || rel == key {
		return filepath.Base(key)
	}
	return rel
}
