// Package orphanscan walks the local staging root on startup and
// reconstructs the LogFilePaths of any files a previous process left
// behind, so the shipper can resume or discard them instead of losing
// track of unshipped data after a crash.
package orphanscan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Thepunisher64344/sunbird-secor/internal/metrics"
	"github.com/Thepunisher64344/sunbird-secor/internal/offsetstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/pathbuilder"
	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
)

// QuarantineDir is the subdirectory (relative to the local root) malformed
// or corrupt orphaned files are moved into rather than deleted.
const QuarantineDir = ".quarantine"

// Outcome records what happened to one discovered file.
type Outcome struct {
	Path   string
	Result string // "resumed", "discarded", "quarantined"
	Err    error
}

// Scan walks localRoot and, for every regular file outside QuarantineDir,
// parses it as a LogFilePath and either:
//   - discards it, if its first offset lies below the group's committed
//     offset for that topic/partition (the committed offset is the next one
//     to consume, so such a file was already durably shipped);
//   - resumes it by adopting it into reg for the uploader to pick up on the
//     next sweep, if its first offset lies at or above committed;
//   - quarantines it, if the path doesn't parse or its content doesn't
//     replay cleanly.
func Scan(ctx context.Context, localRoot, group string, reg *registry.FileRegistry, offsets offsetstore.OffsetStore, logger *slog.Logger) ([]Outcome, error) {
	if logger == nil {
		logger = slog.Default()
	}
	quarantineRoot := filepath.Join(localRoot, QuarantineDir)

	var outcomes []Outcome
	err := filepath.WalkDir(localRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == quarantineRoot {
				return filepath.SkipDir
			}
			return nil
		}

		lfp, perr := pathbuilder.Parse(localRoot, path)
		if perr != nil {
			outcome := quarantine(path, localRoot, quarantineRoot, logger, perr)
			outcomes = append(outcomes, outcome)
			return nil
		}

		outcome := resumeOrDiscard(ctx, path, localRoot, quarantineRoot, group, lfp, reg, offsets, logger)
		outcomes = append(outcomes, outcome)
		return nil
	})
	if err != nil {
		return outcomes, fmt.Errorf("orphanscan: walk %s: %w", localRoot, err)
	}
	return outcomes, nil
}

func resumeOrDiscard(ctx context.Context, path, localRoot, quarantineRoot, group string, lfp *pathbuilder.LogFilePath, reg *registry.FileRegistry, offsets offsetstore.OffsetStore, logger *slog.Logger) Outcome {
	topic := lfp.Topic
	kafkaPartition := lfp.KafkaPartitions[0]
	firstOffset := lfp.Offsets[0]

	committed, ok, err := offsets.Committed(ctx, group, topic, kafkaPartition)
	if err != nil {
		return quarantine(path, localRoot, quarantineRoot, logger, fmt.Errorf("orphanscan: read committed offset: %w", err))
	}
	if ok && firstOffset < committed.Offset {
		if err := os.Remove(path); err != nil {
			return Outcome{Path: path, Result: "discarded", Err: err}
		}
		metrics.OrphanFilesRecovered.WithLabelValues("discarded").Inc()
		logger.Info("discarded orphaned file already covered by committed offset", "path", path, "firstOffset", firstOffset, "committed", committed.Offset)
		return Outcome{Path: path, Result: "discarded"}
	}

	key := registry.Key{
		Topic:            topic,
		KafkaPartition:   kafkaPartition,
		LogicalPartition: strings.Join(lfp.Partitions, "/"),
	}
	if _, err := reg.Adopt(key, lfp); err != nil {
		if errors.Is(err, registry.ErrCorruptTail) {
			return quarantine(path, localRoot, quarantineRoot, logger, err)
		}
		return Outcome{Path: path, Result: "quarantined", Err: err}
	}
	metrics.OrphanFilesRecovered.WithLabelValues("resumed").Inc()
	logger.Info("resumed orphaned file for upload", "path", path, "firstOffset", firstOffset)
	return Outcome{Path: path, Result: "resumed"}
}

func quarantine(path, localRoot, quarantineRoot string, logger *slog.Logger, cause error) Outcome {
	rel, err := filepath.Rel(localRoot, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	dest := filepath.Join(quarantineRoot, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Outcome{Path: path, Result: "quarantined", Err: fmt.Errorf("mkdir quarantine dir: %w", err)}
	}
	if err := os.Rename(path, dest); err != nil {
		return Outcome{Path: path, Result: "quarantined", Err: fmt.Errorf("move to quarantine: %w", err)}
	}
	metrics.OrphanFilesRecovered.WithLabelValues("quarantined").Inc()
	logger.Warn("quarantined unparseable or corrupt local file", "path", path, "destination", dest, "cause", cause)
	return Outcome{Path: path, Result: "quarantined", Err: cause}
}
