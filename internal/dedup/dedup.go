// Package dedup partitions the normalized corpus into duplicate groups using
// two detection tiers: exact (SHA-256 over file bytes) and near (64-bit
// difference hash within a Hamming threshold, bucketed by hash prefix so the
// pairwise search never goes quadratic over the corpus).
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/plantset-cli/internal/model"
)

// Options tunes the scan. Zero values fall back to safe defaults.
type Options struct {
	// Workers bounds concurrent fingerprinting and bucket comparison.
	Workers int
	// HammingThreshold is the maximum dHash bit distance treated as a
	// near-duplicate match.
	HammingThreshold int
	// FileTimeout bounds hashing or decoding one file; a slower file is
	// treated as corrupt, not waited on.
	FileTimeout time.Duration
}

// Deduplicator scans canonical files under processedDir.
type Deduplicator struct {
	processedDir string
	opts         Options
}

func New(processedDir string, opts Options) *Deduplicator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FileTimeout <= 0 {
		opts.FileTimeout = 30 * time.Second
	}
	return &Deduplicator{processedDir: processedDir, opts: opts}
}

// CorruptFile is one excluded unreadable or undecodable file.
type CorruptFile struct {
	CanonicalPath string `csv:"canonical_path" json:"canonical_path"`
	Reason        string `csv:"reason" json:"reason"`
}

// Result is the full dedup output: the fingerprint-enriched corpus, its
// partition into groups, and the audit trail of corrupt exclusions.
type Result struct {
	// Records holds every non-corrupt input record in input order, with
	// ContentHash and PerceptualHash filled in.
	Records []model.ImageRecord
	// Groups partition Records: every record appears in exactly one group.
	Groups []model.DuplicateGroup
	// Corrupt lists files excluded from the partition, sorted by path.
	Corrupt []CorruptFile
}

// Excluded returns the non-survivor member count.
func (r *Result) Excluded() int {
	return len(r.Records) - len(r.Groups)
}

// Dedup fingerprints and partitions the corpus. Corrupt files are logged,
// excluded and reported in the result; they never abort the scan. Only
// context cancellation aborts.
func (d *Deduplicator) Dedup(ctx context.Context, records []model.ImageRecord) (*Result, error) {
	n := len(records)
	hashes := make([]string, n)
	corrupt := make(map[int]error)

	// Tier 1: content hashing, parallel across files with one collector.
	err := fanOut(ctx, d.opts.Workers, n, func(i int) (string, error) {
		return withTimeout(d.opts.FileTimeout, func() (string, error) {
			return fileSHA256(d.path(records[i]))
		})
	}, func(i int, hash string, err error) {
		if err != nil {
			corrupt[i] = err
			return
		}
		hashes[i] = hash
	})
	if err != nil {
		return nil, err
	}

	// One representative per distinct content hash; exact duplicates of an
	// already-hashed file reuse its perceptual hash instead of decoding
	// the same bytes again.
	reps := make(map[string]int, n)
	byHash := make(map[string][]int, n)
	for i := range records {
		if _, bad := corrupt[i]; bad {
			continue
		}
		h := hashes[i]
		if _, ok := reps[h]; !ok {
			reps[h] = i
		}
		byHash[h] = append(byHash[h], i)
	}

	// Tier 2: perceptual hashing of representatives. A decode failure
	// poisons every byte-identical copy.
	repIdx := make([]int, 0, len(reps))
	for _, i := range reps {
		repIdx = append(repIdx, i)
	}
	phashes := make([]uint64, n)
	err = fanOut(ctx, d.opts.Workers, len(repIdx), func(k int) (uint64, error) {
		return withTimeout(d.opts.FileTimeout, func() (uint64, error) {
			return fileDHash(d.path(records[repIdx[k]]))
		})
	}, func(k int, hash uint64, err error) {
		i := repIdx[k]
		if err != nil {
			for _, member := range byHash[hashes[i]] {
				corrupt[member] = err
			}
			delete(byHash, hashes[i])
			return
		}
		phashes[i] = hash
	})
	if err != nil {
		return nil, err
	}
	for _, members := range byHash {
		rep := reps[hashes[members[0]]]
		for _, i := range members {
			phashes[i] = phashes[rep]
		}
	}

	uf := newUnionFind(n)
	for _, members := range byHash {
		for _, i := range members[1:] {
			uf.union(members[0], i)
		}
	}
	if err := d.unionNear(ctx, byHash, reps, phashes, uf); err != nil {
		return nil, err
	}

	return d.assemble(records, hashes, phashes, corrupt, uf), nil
}

// unionNear shards surviving representatives into prefix buckets and merges
// pairs within a bucket whose Hamming distance is inside the threshold.
// Buckets are independent, so each runs as its own worker; matches funnel
// through one channel into the single union-find writer.
func (d *Deduplicator) unionNear(ctx context.Context, byHash map[string][]int, reps map[string]int, phashes []uint64, uf *unionFind) error {
	buckets := make(map[uint16][]int)
	for h := range byHash {
		i := reps[h]
		key := BucketKey(phashes[i])
		buckets[key] = append(buckets[key], i)
	}

	matches := make(chan [2]int)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range matches {
			uf.union(m[0], m[1])
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for _, bucket := range buckets {
		g.Go(func() error {
			for a := 0; a < len(bucket); a++ {
				for b := a + 1; b < len(bucket); b++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					if HammingDistance(phashes[bucket[a]], phashes[bucket[b]]) <= d.opts.HammingThreshold {
						matches <- [2]int{bucket[a], bucket[b]}
					}
				}
			}
			return nil
		})
	}
	err := g.Wait()
	close(matches)
	<-done
	return err
}

// assemble turns union-find components into sorted, numbered groups and the
// enriched record list.
func (d *Deduplicator) assemble(records []model.ImageRecord, hashes []string, phashes []uint64, corrupt map[int]error, uf *unionFind) *Result {
	res := &Result{}

	kept := make([]int, 0, len(records))
	for i, rec := range records {
		if err, bad := corrupt[i]; bad {
			zap.L().Warn("excluding corrupt file",
				zap.String("path", rec.CanonicalPath),
				zap.Error(&CorruptFileError{Path: rec.CanonicalPath, Err: err}))
			res.Corrupt = append(res.Corrupt, CorruptFile{
				CanonicalPath: rec.CanonicalPath,
				Reason:        err.Error(),
			})
			continue
		}
		rec.ContentHash = hashes[i]
		rec.PerceptualHash = FormatHash(phashes[i])
		res.Records = append(res.Records, rec)
		kept = append(kept, i)
	}
	sort.Slice(res.Corrupt, func(a, b int) bool {
		return res.Corrupt[a].CanonicalPath < res.Corrupt[b].CanonicalPath
	})

	components := make(map[int][]int)
	for _, i := range kept {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	for _, members := range components {
		group := model.DuplicateGroup{Kind: groupKind(members, hashes)}
		survivor := members[0]
		for _, i := range members {
			group.Members = append(group.Members, records[i].CanonicalPath)
			if records[i].ByteSize > records[survivor].ByteSize ||
				(records[i].ByteSize == records[survivor].ByteSize &&
					records[i].CanonicalPath < records[survivor].CanonicalPath) {
				survivor = i
			}
		}
		sort.Strings(group.Members)
		group.Survivor = records[survivor].CanonicalPath
		res.Groups = append(res.Groups, group)
	}
	sort.Slice(res.Groups, func(a, b int) bool {
		return res.Groups[a].Members[0] < res.Groups[b].Members[0]
	})
	for i := range res.Groups {
		res.Groups[i].ID = i + 1
	}
	return res
}

func groupKind(members []int, hashes []string) model.DuplicateGroupKind {
	if len(members) == 1 {
		return model.GroupUnique
	}
	for _, i := range members[1:] {
		if hashes[i] != hashes[members[0]] {
			return model.GroupNear
		}
	}
	return model.GroupExact
}

// fanOut runs fn for indices [0,n) on a bounded worker pool and feeds every
// outcome to collect on a single goroutine, so result aggregation never
// needs locking. It returns only context errors; per-item failures flow
// through collect.
func fanOut[T any](ctx context.Context, workers, n int, fn func(int) (T, error), collect func(int, T, error)) error {
	type item struct {
		idx int
		val T
		err error
	}
	results := make(chan item)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			collect(r.idx, r.val, r.err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			val, err := fn(i)
			results <- item{idx: i, val: val, err: err}
			return nil
		})
	}
	err := g.Wait()
	close(results)
	<-done
	return err
}

func (d *Deduplicator) path(rec model.ImageRecord) string {
	return filepath.Join(d.processedDir, filepath.FromSlash(rec.CanonicalPath))
}

func fileDHash(path string) (uint64, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "dedup: decode %s", path)
	}
	return DHash(img), nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "dedup: open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "dedup: read %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// withTimeout bounds one hashing or decoding call. On timeout the worker
// goroutine is abandoned; it holds no locks and exits when its file
// operation completes.
func withTimeout[T any](timeout time.Duration, fn func() (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		val, err := fn()
		ch <- outcome{val: val, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-ch:
		return out.val, out.err
	case <-timer.C:
		var zero T
		return zero, eris.Errorf("timed out after %s", timeout)
	}
}
