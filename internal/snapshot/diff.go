package snapshot

import (
	"context"
	"fmt"

	"coldpack/internal/codec"
	"coldpack/internal/digest"
	"coldpack/internal/mdstore"
	"coldpack/internal/model"
)

// FindChangedFiles compares two snapshots' Merkle trees and returns the
// relative paths of every file whose digest differs, including files added
// (also those under newly added directories). Entries present only in from
// are reported by name, a removed directory as a single path. Symlink
// entries carry no digest, so a symlink whose target changed is not
// reported. Unchanged subtrees are skipped entirely without reading their
// children, since a directory's digest already covers its full contents.
func FindChangedFiles(ctx context.Context, kv mdstore.KV, from, to model.Snapshot) ([]string, error) {
	var changed []string
	if err := diffTree(ctx, kv, "", from.RootTree, to.RootTree, &changed); err != nil {
		return nil, err
	}
	return changed, nil
}

func diffTree(ctx context.Context, kv mdstore.KV, relPath string, fromDigest, toDigest digest.Digest, changed *[]string) error {
	if fromDigest.Equal(toDigest) {
		return nil
	}

	fromEntries, err := loadTree(ctx, kv, fromDigest)
	if err != nil {
		return err
	}
	toEntries, err := loadTree(ctx, kv, toDigest)
	if err != nil {
		return err
	}

	byName := make(map[string]model.Entry, len(fromEntries))
	for _, e := range fromEntries {
		byName[e.Name] = e
	}

	for _, toEntry := range toEntries {
		childPath := joinRel(relPath, toEntry.Name)
		fromEntry, existed := byName[toEntry.Name]
		delete(byName, toEntry.Name)

		switch toEntry.Kind {
		case model.KindDir:
			var fromTree digest.Digest
			if existed && fromEntry.Kind == model.KindDir {
				fromTree = fromEntry.Digest
			}
			if err := diffTree(ctx, kv, childPath, fromTree, toEntry.Digest, changed); err != nil {
				return err
			}
		default:
			if !existed || !fromEntry.Digest.Equal(toEntry.Digest) {
				*changed = append(*changed, childPath)
			}
		}
	}

	// Anything left in byName was removed between snapshots.
	for name := range byName {
		*changed = append(*changed, joinRel(relPath, name))
	}
	return nil
}

func joinRel(relPath, name string) string {
	if relPath == "" {
		return name
	}
	return relPath + "/" + name
}

// loadTree returns empty entries (rather than an error) for the zero
// Digest, so diffing against a dataset's very first snapshot (which has no
// parent tree) treats every entry on the new side as added.
func loadTree(ctx context.Context, kv mdstore.KV, d digest.Digest) ([]model.Entry, error) {
	if d.IsZero() {
		return nil, nil
	}
	key := mdstore.PrefixTree + d.String()
	data, err := kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load tree %s: %w", key, err)
	}
	var tree model.Tree
	if err := codec.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("snapshot: decode tree %s: %w", key, err)
	}
	return tree.Entries, nil
}
