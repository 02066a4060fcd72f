package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
	"github.com/Carmen-Shannon/oxy-world/engine/persist"
	"github.com/Carmen-Shannon/oxy-world/engine/registry"
	"github.com/Carmen-Shannon/oxy-world/engine/tile_index"
	"go.uber.org/zap"
)

// LoadReport summarizes a Load.
type LoadReport struct {
	Name    string
	Records int
	Tiles   int
	Added   int
	// Duplicates lists records whose saved UID was taken and were added under a new UID.
	Duplicates []registry.Duplicate
	// UnknownModels lists the distinct model names the catalog could not resolve, sorted.
	UnknownModels []string
	// Skipped counts records that were not added: unknown models or invalid kinds.
	Skipped  int
	Duration time.Duration
}

type loadState struct {
	added   atomic.Int64
	skipped atomic.Int64

	mu         sync.Mutex
	duplicates []registry.Duplicate
	unknown    map[string]struct{}
}

// Load reads the map from the store and adds the records tile by tile on a worker pool.
// The header name becomes the world name. Load returns once the update queue has drained,
// so the tile index reflects every added instance.
func (w *world) Load(ctx context.Context, store persist.Store, catalog model.Catalog) (LoadReport, error) {
	start := time.Now()

	snap, err := store.Load(ctx)
	if err != nil {
		return LoadReport{}, fmt.Errorf("load map: %w", err)
	}

	w.bulk.Lock()
	defer w.bulk.Unlock()

	if snap.Header.Name != "" {
		w.name = snap.Header.Name
	}

	groups := w.groupByTile(snap.Instances)
	st := &loadState{unknown: make(map[string]struct{})}

	pool := worker.NewDynamicWorkerPool(w.loaderWorkers, 256, 1*time.Second)
	defer pool.Stop()

	var wg sync.WaitGroup
	taskID := 0
	for _, records := range groups {
		wg.Add(1)
		recs := records // capture for closure
		id := taskID
		taskID++
		pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				w.loadRecords(ctx, catalog, recs, st)
				return nil, nil
			},
		})
	}
	wg.Wait()
	w.queue.WaitUntilDrained()

	report := LoadReport{
		Name:       w.name,
		Records:    len(snap.Instances),
		Tiles:      len(groups),
		Added:      int(st.added.Load()),
		Skipped:    int(st.skipped.Load()),
		Duplicates: st.duplicates,
		Duration:   time.Since(start),
	}
	for name := range st.unknown {
		report.UnknownModels = append(report.UnknownModels, name)
	}
	sort.Strings(report.UnknownModels)
	sort.Slice(report.Duplicates, func(i, j int) bool {
		return report.Duplicates[i].Assigned < report.Duplicates[j].Assigned
	})

	w.log.Info("map loaded",
		zap.String("name", report.Name),
		zap.Int("records", report.Records),
		zap.Int("tiles", report.Tiles),
		zap.Int("added", report.Added),
		zap.Int("duplicates", len(report.Duplicates)),
		zap.Int("skipped", report.Skipped),
		zap.Duration("took", report.Duration),
	)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// groupByTile buckets records by the tile under their position. Records keep UID order within a tile.
func (w *world) groupByTile(records []persist.InstanceRecord) [][]persist.InstanceRecord {
	byTile := make(map[tile_index.TileCoord][]persist.InstanceRecord)
	order := make([]tile_index.TileCoord, 0)
	for _, rec := range records {
		t := w.index.TileAt(rec.Position[0], rec.Position[2])
		if _, ok := byTile[t]; !ok {
			order = append(order, t)
		}
		byTile[t] = append(byTile[t], rec)
	}
	out := make([][]persist.InstanceRecord, 0, len(order))
	for _, t := range order {
		out = append(out, byTile[t])
	}
	return out
}

func (w *world) loadRecords(ctx context.Context, catalog model.Catalog, records []persist.InstanceRecord, st *loadState) {
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		inst, err := rec.Instance(catalog)
		if err != nil {
			st.skipped.Add(1)
			if errors.Is(err, model.ErrUnknownModel) {
				st.mu.Lock()
				st.unknown[rec.Model] = struct{}{}
				st.mu.Unlock()
			}
			w.log.Debug("record skipped", zap.Uint32("uid", rec.UID), zap.Error(err))
			continue
		}

		_, err = w.reg.Add(inst, rec.UID)
		var dup *registry.DuplicateUIDError
		switch {
		case err == nil:
			st.added.Add(1)
		case errors.As(err, &dup):
			st.added.Add(1)
			st.mu.Lock()
			st.duplicates = append(st.duplicates, registry.Duplicate{Requested: dup.Requested, Assigned: dup.Assigned})
			st.mu.Unlock()
		default:
			st.skipped.Add(1)
			w.log.Warn("record rejected", zap.Uint32("uid", rec.UID), zap.Error(err))
		}
	}
}
