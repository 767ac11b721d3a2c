package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the database and index generations.
type Usage struct {
	TotalBytes int64            `json:"total_bytes"`
	PerPath    map[string]int64 `json:"per_path"`
}

// DiskUsage sums the size of each path. A path may be a file or a directory
// (summed recursively); missing paths count as 0. SQLite side files (-wal, -shm)
// are included with their database.
func DiskUsage(paths ...string) (*Usage, error) {
	u := &Usage{PerPath: make(map[string]int64, len(paths))}
	for _, p := range paths {
		if p == "" {
			continue
		}
		var n int64
		for _, candidate := range []string{p, p + "-wal", p + "-shm"} {
			size, err := pathSize(candidate)
			if err != nil {
				return nil, err
			}
			n += size
		}
		u.PerPath[p] = n
		u.TotalBytes += n
	}
	return u, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
