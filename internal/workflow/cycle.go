package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chunkq/internal/block"
	"chunkq/internal/dedup"
	"chunkq/internal/logging"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/status"
	"chunkq/internal/worker"
)

// CycleReport summarizes one pass of the poll loop. Retrying counts fetched
// rows that belong to blocks which failed in an earlier cycle; Deferred counts
// rows skipped because an older row of the same key is still being retried.
type CycleReport struct {
	Pending    int
	Deduped    int64
	Fetched    int
	Held       bool
	Blocks     int
	FullBlocks int
	Failed     int
	Processed  int
	Retrying   int
	Deferred   int
	Cursor     int64
	Errors     []error
}

// RunCycle performs one poll cycle. The returned error is set when the cycle
// was aborted before dispatch; block failures are reported in CycleReport.
func (p *Processor) RunCycle(ctx context.Context) (report CycleReport, err error) {
	ctx = services.WithIndex(ctx, p.Name())
	start := time.Now()
	report.Cursor = p.cursor
	defer func() {
		if report.Deduped > 0 || report.Processed > 0 {
			p.notifier.SetQueueSize(max(0, report.Pending-int(report.Deduped)-report.Processed))
		}
		report.Cursor = p.cursor
		p.notifier.SetState(status.StateIdle)
		p.notifier.SetCursor(p.cursor)
	}()

	rows, window, err := p.poll(ctx, &report)
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		p.notifier.SetError(err)
		logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "queue poll failed", "queue_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access; the cycle retries on the next tick"),
		)
		report.Errors = append(report.Errors, err)
		return report, err
	}
	if len(rows) == 0 {
		return report, nil
	}
	tail := rows[len(rows)-1].ID
	rows = p.holdBack(rows, &report)
	if len(rows) == 0 {
		p.cursor = max(p.cursor, tail)
		return report, nil
	}

	if !p.gate.Ready(len(rows), rows[0].EnqueuedAt, time.Now()) {
		report.Held = true
		p.logger.Debug("holding small batch",
			logging.Int("pending", len(rows)),
			logging.Int("blocks_min_items", p.settings.BlocksMinItems),
		)
		return report, nil
	}

	// Dispatched work survives shutdown so its results are published and vacuumed.
	work := context.WithoutCancel(ctx)

	p.notifier.SetState(status.StateAssembling)
	blocks, err := block.AssembleIsolating(rows, p.settings.ItemsPerTask, p.retrying, p.flavor.EncodeBlock)
	if err != nil {
		err = services.Wrap(services.ErrWorkerError, "workflow", "assemble", "", err)
		p.notifier.SetError(err)
		report.Errors = append(report.Errors, err)
		return report, err
	}
	truncated := len(blocks) > p.settings.BlocksMax
	if truncated {
		blocks = blocks[:p.settings.BlocksMax]
	}
	report.Blocks = len(blocks)
	report.FullBlocks = block.Full(blocks, p.settings.ItemsPerTask)
	p.saveArtifacts(work, blocks)

	p.notifier.SetState(status.StateDispatching)
	futures := make([]*worker.Future, len(blocks))
	for i, blk := range blocks {
		taskCtx := services.WithBlockID(work, blk.ID)
		futures[i] = p.pool.Dispatch(taskCtx, worker.Task{ID: blk.ID, Payload: blk.Payload, Compile: p.flavor.Compile})
	}
	results, joinErr := worker.JoinAll(work, futures, p.settings.WorkerTimeout)
	if joinErr != nil {
		p.logger.Debug("block compile failed",
			logging.Error(joinErr),
			logging.Int("blocks", len(blocks)),
		)
	}

	p.notifier.SetState(status.StatePublishing)
	var vacuumIDs []int64
	for i, res := range results {
		blk := blocks[i]
		if err := p.publishBlock(work, blk, res); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, err)
			for _, row := range blk.Items {
				p.retry[row.ID] = row.ChunkKey
			}
			continue
		}
		vacuumIDs = append(vacuumIDs, blk.IDs()...)
	}

	p.notifier.SetState(status.StateVacuuming)
	if len(vacuumIDs) > 0 {
		if err := p.store.Vacuum(work, p.Name(), vacuumIDs); err != nil {
			p.notifier.SetError(err)
			report.Errors = append(report.Errors, err)
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "vacuum incomplete", "queue_vacuum_failed",
				logging.Error(err),
				logging.Int("rows", len(vacuumIDs)),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "published rows may be compiled again"),
			)
		} else {
			report.Processed = len(vacuumIDs)
			p.notifier.AddProcessed(len(vacuumIDs))
			for _, id := range vacuumIDs {
				delete(p.retry, id)
			}
		}
	}

	p.cursor = nextCursor(window.Cursor, tail, blocks, truncated)
	p.notifier.ObserveCycle(start)

	logger := logging.WithContext(ctx, p.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "cycle_complete"),
		logging.Int("rows", len(rows)),
		logging.Int("blocks", report.Blocks),
		logging.Int("failed", report.Failed),
		logging.Int("processed", report.Processed),
		logging.Int64("cursor", p.cursor),
		logging.Duration("elapsed", time.Since(start)),
	}
	if report.Failed > 0 {
		logger.Warn("cycle complete with failed blocks", logging.Args(attrs...)...)
	} else {
		logger.Info("cycle complete", logging.Args(attrs...)...)
	}
	return report, nil
}

// poll slides the window to the first pending row, dedupes it and fetches the
// survivors that fall inside it.
func (p *Processor) poll(ctx context.Context, report *CycleReport) ([]queue.Row, dedup.Window, error) {
	p.notifier.SetState(status.StatePolling)
	depth, err := p.store.Depth(ctx, p.Name())
	if err != nil {
		return nil, dedup.Window{}, err
	}
	report.Pending = depth
	p.notifier.SetQueueSize(depth)

	head, ok, err := p.store.Head(ctx, p.Name(), p.cursor)
	if err != nil {
		return nil, dedup.Window{}, err
	}
	retryDue := len(p.retry) > 0 && time.Since(p.retriedAt) >= p.settings.PollPeriod
	if p.cursor > 0 && ((!ok && depth > 0) || retryDue) {
		p.logger.Debug("cursor wrapped to revisit kept rows",
			logging.Int64("cursor", p.cursor),
			logging.Int("pending", depth),
			logging.Int("retrying", len(p.retry)),
		)
		p.cursor = 0
		p.retriedAt = time.Now()
		head, ok, err = p.store.Head(ctx, p.Name(), p.cursor)
		if err != nil {
			return nil, dedup.Window{}, err
		}
	}
	if !ok {
		return nil, dedup.Window{Cursor: p.cursor}, nil
	}
	// Rows below head are gone; start the window right before it.
	cursor := max(p.cursor, head-1)

	limit := p.settings.FetchLimit()
	window := dedup.Window{Cursor: cursor, Limit: int64(limit)}

	p.notifier.SetState(status.StateDeduping)
	removed, err := p.store.DedupeWith(ctx, p.flavor.DedupeQuery(window))
	if err != nil {
		return nil, window, err
	}
	report.Deduped = removed

	rows, err := p.store.FetchSince(ctx, p.Name(), window.Cursor, limit)
	if err != nil {
		return nil, window, err
	}
	for i, row := range rows {
		if !window.Contains(row.ID) {
			rows = rows[:i]
			break
		}
	}
	for _, row := range rows {
		if p.retrying(row) {
			report.Retrying++
		}
	}
	report.Fetched = len(rows)
	return rows, window, nil
}

func (p *Processor) saveArtifacts(ctx context.Context, blocks []block.Block) {
	for _, blk := range blocks {
		err := p.store.SaveArtifact(ctx, queue.BlockArtifact{
			ID:        blk.ID,
			Index:     p.Name(),
			MinRowID:  blk.MinID(),
			MaxRowID:  blk.MaxID(),
			ItemCount: len(blk.Items),
			Payload:   blk.Payload,
		})
		if err != nil {
			p.notifier.SetError(err)
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "block artifact not recorded", "block_artifact_failed",
				logging.String(logging.FieldBlockID, blk.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "block is still dispatched; queue artifacts listing is incomplete"),
			)
		}
	}
}

// publishBlock publishes a successful worker result. It returns an error when
// the block's rows must stay queued.
func (p *Processor) publishBlock(ctx context.Context, blk block.Block, res worker.Result) error {
	ctx = services.WithBlockID(ctx, blk.ID)
	logger := logging.WithContext(ctx, p.logger)

	if res.Err != nil {
		outcome := status.OutcomeFailed
		if errors.Is(res.Err, services.ErrWorkerTimeout) {
			outcome = status.OutcomeTimeout
		}
		p.notifier.ObserveBlock(outcome)
		p.notifier.SetError(res.Err)
		logging.WarnWithContext(logger, "block compile failed", "block_"+outcome,
			logging.Error(res.Err),
			logging.Int("rows", len(blk.Items)),
			logging.Int64("min_row_id", blk.MinID()),
			logging.Duration("elapsed", res.Elapsed),
			logging.String(logging.FieldErrorHint, "rows stay queued and are retried next cycle"),
		)
		return res.Err
	}

	outputs, err := p.flavor.ProcessResults(res.Outputs)
	if err != nil {
		p.notifier.ObserveBlock(status.OutcomeFailed)
		p.notifier.SetError(err)
		logging.WarnWithContext(logger, "block results rejected", "block_results_invalid", logging.Error(err))
		return err
	}

	_, err = p.publisher.Publish(ctx, p.Name(), outputs)
	if err != nil {
		p.notifier.SetError(err)
		if !pushOnly(err) {
			p.notifier.ObserveBlock(status.OutcomeFailed)
			logging.WarnWithContext(logger, "block publish failed", "block_publish_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			return fmt.Errorf("publish block %s: %w", blk.ID, err)
		}
	}
	p.notifier.ObserveBlock(status.OutcomeOK)
	return nil
}

// pushOnly reports whether err is only a failed client push.
func pushOnly(err error) bool {
	return errors.Is(err, services.ErrPublishFailure) &&
		!errors.Is(err, services.ErrStoreUnavailable) &&
		!errors.Is(err, services.ErrWorkerError)
}

// holdBack drops rows whose chunk key still has an older row waiting for
// retry, so versions of a key are never compiled out of order. The dropped
// rows stay queued and collapse into the older row once the window reaches it.
func (p *Processor) holdBack(rows []queue.Row, report *CycleReport) []queue.Row {
	if len(p.retry) == 0 {
		return rows
	}
	held := make(map[string]struct{}, len(p.retry))
	for _, key := range p.retry {
		held[key] = struct{}{}
	}
	kept := rows[:0:0]
	for _, row := range rows {
		if _, ok := held[row.ChunkKey]; ok && !p.retrying(row) {
			report.Deferred++
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// retrying reports whether row was part of a block that failed earlier.
func (p *Processor) retrying(row queue.Row) bool {
	_, ok := p.retry[row.ID]
	return ok
}

// nextCursor moves cursor past every fetched row, or only past the last
// dispatched block when blocks_max cut the batch short. Failed rows left
// behind are revisited when the cursor wraps.
func nextCursor(cursor, tail int64, blocks []block.Block, truncated bool) int64 {
	if truncated && len(blocks) > 0 {
		return max(cursor, blocks[len(blocks)-1].MaxID())
	}
	return max(cursor, tail)
}
