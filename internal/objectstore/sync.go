package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	// ReferencePrefix holds approved reference images, mirroring the local reference directory.
	ReferencePrefix = "reference/"
	// ResultsPrefix holds published runs as results/<run id>/<file>.
	ResultsPrefix = "results/"

	referenceSuffix = "-reference.png"
)

// SyncSummary counts what a push or pull did.
type SyncSummary struct {
	Transferred int
	Unchanged   int
	// Conflicts are files that differ on both sides and were left alone because force was off.
	Conflicts []string
}

// PushReferences uploads local reference images that are missing remotely. A reference that
// differs from the remote copy is only replaced when force is set.
func PushReferences(ctx context.Context, p Provider, dir string, force bool, log *zap.Logger) (SyncSummary, error) {
	var sum SyncSummary
	if log == nil {
		log = zap.NewNop()
	}
	remote, err := listByKey(ctx, p, ReferencePrefix)
	if err != nil {
		return sum, err
	}
	locals, err := localFiles(dir, referenceSuffix)
	if err != nil {
		return sum, err
	}
	for _, rel := range locals {
		key := ReferencePrefix + rel
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if obj, ok := remote[key]; ok {
			same, err := sameContent(path, obj)
			if err != nil {
				return sum, err
			}
			if same {
				sum.Unchanged++
				continue
			}
			if !force {
				sum.Conflicts = append(sum.Conflicts, rel)
				continue
			}
		}
		if _, err := p.Upload(ctx, key, path); err != nil {
			return sum, fmt.Errorf("upload %s: %w", rel, err)
		}
		log.Info("reference uploaded", zap.String("key", key))
		sum.Transferred++
	}
	return sum, nil
}

// PullReferences downloads remote reference images into dir. Local files that differ from the
// remote copy are only replaced when force is set.
func PullReferences(ctx context.Context, p Provider, dir string, force bool, log *zap.Logger) (SyncSummary, error) {
	var sum SyncSummary
	if log == nil {
		log = zap.NewNop()
	}
	objects, err := p.List(ctx, ReferencePrefix)
	if err != nil {
		return sum, fmt.Errorf("list references: %w", err)
	}
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, ReferencePrefix)
		if !strings.HasSuffix(rel, referenceSuffix) {
			continue
		}
		path, err := localPath(dir, rel)
		if err != nil {
			return sum, err
		}
		if _, statErr := os.Stat(path); statErr == nil {
			same, err := sameContent(path, obj)
			if err != nil {
				return sum, err
			}
			if same {
				sum.Unchanged++
				continue
			}
			if !force {
				sum.Conflicts = append(sum.Conflicts, rel)
				continue
			}
		}
		if err := download(ctx, p, obj.Key, path); err != nil {
			return sum, fmt.Errorf("download %s: %w", rel, err)
		}
		log.Info("reference downloaded", zap.String("key", obj.Key))
		sum.Transferred++
	}
	return sum, nil
}

// PublishResults uploads every artifact in the results directory under results/<runID>/.
func PublishResults(ctx context.Context, p Provider, dir, runID string, log *zap.Logger) (int, error) {
	if strings.TrimSpace(runID) == "" {
		return 0, fmt.Errorf("run id is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	files, err := localFiles(dir, "")
	if err != nil {
		return 0, err
	}
	for i, rel := range files {
		key := ResultsPrefix + runID + "/" + rel
		if _, err := p.Upload(ctx, key, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return i, fmt.Errorf("upload %s: %w", rel, err)
		}
		log.Debug("artifact uploaded", zap.String("key", key))
	}
	return len(files), nil
}

func listByKey(ctx context.Context, p Provider, prefix string) (map[string]ObjectInfo, error) {
	objects, err := p.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := make(map[string]ObjectInfo, len(objects))
	for _, obj := range objects {
		out[obj.Key] = obj
	}
	return out, nil
}

// localFiles returns slash-separated paths under dir ending in suffix, skipping hidden
// temporary files.
func localFiles(dir, suffix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return out, nil
}

func localPath(dir, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("remote key %q escapes the reference directory", rel)
	}
	return filepath.Join(dir, clean), nil
}

// download writes to a sibling temp file and renames it into place.
func download(ctx context.Context, p Provider, key, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".part")
	if _, err := p.Download(ctx, key, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// sameContent compares a local file against the remote size and, for single-part uploads,
// the MD5 ETag.
func sameContent(path string, obj ObjectInfo) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.Size() != obj.Size {
		return false, nil
	}
	if obj.ETag == "" || strings.Contains(obj.ETag, "-") {
		return true, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == strings.ToLower(obj.ETag), nil
}
