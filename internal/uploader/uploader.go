// Package uploader implements the upload protocol: close a registry entry
// that has crossed a commit-policy threshold, ship its bytes to the blob
// store, commit the resulting offset as the at-least-once linearization
// point, then delete the local file. Concurrent uploads across partitions
// are bounded by a weighted semaphore, mirroring the s3sem gating pattern
// used for segment uploads.
package uploader

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Thepunisher64344/sunbird-secor/internal/blobstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/commitpolicy"
	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/dedupe"
	"github.com/Thepunisher64344/sunbird-secor/internal/offsetstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
)

// Uploader drives the close-upload-commit-delete sequence for registry entries.
type Uploader struct {
	reg     *registry.FileRegistry
	policy  commitpolicy.Policy
	blob    blobstore.BlobStore
	offsets offsetstore.OffsetStore
	dedupe  *dedupe.Cache
	group   string
	sem     *semaphore.Weighted
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// New builds an Uploader.
func New(reg *registry.FileRegistry, policy commitpolicy.Policy, blob blobstore.BlobStore, offsets offsetstore.OffsetStore, dedupeCache *dedupe.Cache, group string, cfg config.CommitPolicyConfig, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Uploader{
		reg:     reg,
		policy:  policy,
		blob:    blob,
		offsets: offsets,
		dedupe:  dedupeCache,
		group:   group,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		retries: cfg.UploadRetries,
		backoff: cfg.UploadBackoff,
		logger:  logger,
	}
}

// Sweep uploads every (topic, kafkaPartition) that has at least one open
// entry past its commit-policy threshold, concurrently across partitions,
// bounded by the configured upload concurrency.
func (u *Uploader) Sweep(ctx context.Context) error {
	now := time.Now()
	type topicPartition struct {
		topic     string
		partition int32
	}
	due := make(map[topicPartition]struct{})
	for _, e := range u.reg.All() {
		if u.policy.ShouldFlush(e, now) {
			due[topicPartition{e.Key.Topic, e.Key.KafkaPartition}] = struct{}{}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for tp := range due {
		tp := tp
		g.Go(func() error {
			if err := u.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer u.sem.Release(1)
			return u.Upload(gctx, tp.topic, tp.partition)
		})
	}
	return g.Wait()
}

// Upload runs the full protocol for every logical partition currently open
// for (topic, kafkaPartition): snapshot the entry set, close and upload each
// one to the blob store, and only once every upload in the snapshot
// succeeds, commit a single offset for the partition — computed as the
// maximum LastOffset+1 across the set — with capped retry backoff. Only
// after that commit succeeds are the local files deleted and the entries
// dropped from the registry (spec.md §4.5 step 4: the commit, not the
// delete, is the linearization point). Committing at (topic,
// kafkaPartition) granularity — rather than per entry — is required because
// a single kafkaPartition can have several logical partitions open at once
// (e.g. a day boundary straddling two date partitions); committing each in
// isolation would make the committed offset order-dependent and could
// advance it past an entry that failed to upload.
//
// If the commit itself fails after every retry, the uploaded entries are
// left open in the registry rather than dropped: their bytes are already in
// the blob store, but nothing has advanced the committed offset yet, so the
// next Upload/Sweep call finds the same entries, skips the redundant Put via
// the dedupe cache, and retries the commit. This is what makes an
// OffsetStore outage recoverable in-process instead of requiring a restart.
func (u *Uploader) Upload(ctx context.Context, topic string, kafkaPartition int32) error {
	entries := u.reg.EntriesFor(topic, kafkaPartition)
	if len(entries) == 0 {
		return nil
	}

	candidate := int64(-1)
	for _, e := range entries {
		if err := u.uploadEntry(ctx, e.Key); err != nil {
			return fmt.Errorf("uploader: upload %s: %w", e.Key, err)
		}
		if e.LastOffset+1 > candidate {
			candidate = e.LastOffset + 1
		}
	}
	if candidate < 0 {
		return nil
	}

	pos := offsetstore.Position{Offset: candidate, TimestampMillis: time.Now().UnixMilli()}
	if err := u.commitWithRetry(ctx, topic, kafkaPartition, pos); err != nil {
		return fmt.Errorf("uploader: commit offset for %s/%d: %w", topic, kafkaPartition, err)
	}

	for _, e := range entries {
		u.finalize(e.Key)
	}
	return nil
}

// uploadEntry closes, reads, dedupe-checks, and uploads-with-retry a single
// registry entry's bytes to the blob store. It does not commit an offset,
// delete the local file, or drop the entry from the registry — the caller
// only does that once the whole (topic, kafkaPartition) commit has
// succeeded.
func (u *Uploader) uploadEntry(ctx context.Context, key registry.Key) error {
	entry, ok := u.reg.Lookup(key)
	if !ok {
		return nil
	}
	localPath := entry.Path.Render()

	if err := u.reg.Close(key); err != nil {
		return fmt.Errorf("uploader: close %s: %w", key, err)
	}

	body, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("uploader: read %s: %w", localPath, err)
	}

	objectKey := entry.Path.WithPrefix("").Render()
	sum := md5.Sum(body)

	if u.dedupe == nil || !u.dedupe.IsDuplicate(objectKey, body) {
		if err := u.uploadWithRetry(ctx, objectKey, body); err != nil {
			return err
		}
		if u.dedupe != nil {
			u.dedupe.Record(objectKey, sum)
		}
	} else {
		u.logger.Info("skipping upload of byte-identical retry", "key", objectKey)
	}

	u.logger.Info("uploaded", "key", objectKey, "records", entry.Count, "bytes", entry.Bytes)
	return nil
}

// finalize deletes key's local file and drops it from the registry, once
// its upload has been covered by a durably committed offset.
func (u *Uploader) finalize(key registry.Key) {
	entry, ok := u.reg.Lookup(key)
	if !ok {
		return
	}
	localPath := entry.Path.Render()
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		u.logger.Warn("failed to remove uploaded local file", "path", localPath, "error", err)
	}
	u.reg.Drop(key)
}

func (u *Uploader) uploadWithRetry(ctx context.Context, key string, body []byte) error {
	return u.retry(ctx, "put", key, func() error {
		return u.blob.Put(ctx, key, body)
	})
}

func (u *Uploader) commitWithRetry(ctx context.Context, topic string, kafkaPartition int32, pos offsetstore.Position) error {
	label := fmt.Sprintf("%s/%d", topic, kafkaPartition)
	return u.retry(ctx, "commit offset", label, func() error {
		return u.offsets.CommitOffset(ctx, u.group, topic, kafkaPartition, pos)
	})
}

// retry runs op up to u.retries times with doubling backoff, used for both
// the blob store Put and the OffsetStore CommitOffset — both are the kind of
// transient-failure-prone remote call spec.md §7 requires retrying with
// backoff rather than dropping data on.
func (u *Uploader) retry(ctx context.Context, verb, key string, op func() error) error {
	attempts := u.retries
	if attempts <= 0 {
		attempts = 1
	}
	backoff := u.backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(1<<uint(attempt-1))):
			}
		}
		if err := op(); err != nil {
			lastErr = err
			u.logger.Warn(verb+" attempt failed", "key", key, "attempt", attempt+1, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("uploader: %s %s failed after %d attempts: %w", verb, key, attempts, lastErr)
}
