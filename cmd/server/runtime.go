package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"pixelcraft.ai/internal/persistence/archive"
	"pixelcraft.ai/internal/sim/world"
	"pixelcraft.ai/internal/transport/observer"
)

// runtime drives one world from a single goroutine and hands frame stats to
// the observer and the metrics endpoint.
type runtime struct {
	w      *world.World
	obs    *observer.Server
	sinks  *sinks
	logger *log.Logger

	last        atomic.Pointer[world.FrameStats]
	saves       atomic.Uint64
	saveErrs    atomic.Uint64
	backups     atomic.Uint64
	lastBackupT atomic.Uint64
}

func newRuntime(w *world.World, obs *observer.Server, sk *sinks, logger *log.Logger) *runtime {
	rt := &runtime{w: w, obs: obs, sinks: sk, logger: logger}
	w.SetStatsSink(rt.publish)
	return rt
}

func (rt *runtime) publish(st world.FrameStats) {
	rt.last.Store(&st)
	if rt.obs != nil {
		rt.obs.Publish(st)
	}
}

// run steps the world at the tuned rate until ctx is done or maxTicks is
// reached. Camera moves from observers apply between steps.
func (rt *runtime) run(ctx context.Context, maxTicks uint64) error {
	hz := rt.w.Tuning().TickRateHz
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	var cams <-chan image.Point
	if rt.obs != nil {
		cams = rt.obs.Cameras()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-cams:
			rt.w.SetCamera(p.X, p.Y)
		case <-ticker.C:
			rt.step()
			if maxTicks > 0 && rt.w.CurrentTick() >= maxTicks {
				return nil
			}
		}
	}
}

func (rt *runtime) step() {
	rt.w.Step()
	p := rt.w.Tuning().Persistence
	tick := rt.w.CurrentTick()

	backup := archive.Due(tick, p.BackupEveryTicks)
	if !backup && !archive.Due(tick, p.SaveEveryTicks) {
		return
	}
	if err := rt.w.Save(); err != nil {
		rt.saveErrs.Add(1)
		rt.logger.Printf("save tick=%d: %v", tick, err)
		return
	}
	rt.saves.Add(1)
	if !backup {
		return
	}
	dir, files, err := archive.BackupWorld(rt.w.Dir(), rt.w.Meta().Name, tick)
	if err != nil {
		rt.logger.Printf("backup tick=%d: %v", tick, err)
		return
	}
	rt.backups.Add(1)
	rt.lastBackupT.Store(tick)
	rt.logger.Printf("backup tick=%d dir=%s files=%d", tick, dir, len(files))
	if rt.sinks != nil {
		rt.sinks.mirrorFiles(files)
	}
	if removed, err := archive.Prune(rt.w.Dir(), p.BackupKeep); err != nil {
		rt.logger.Printf("prune backups: %v", err)
	} else if len(removed) > 0 {
		rt.logger.Printf("pruned %d backups", len(removed))
	}
}

func (rt *runtime) metricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if st := rt.last.Load(); st != nil {
			gauge(rw, "pixelcraft_tick", "Last completed tick.", st.Tick)
			gauge(rw, "pixelcraft_loaded_chunks", "Chunks with a record in memory.", st.LoadedChunks)
			gauge(rw, "pixelcraft_live_chunks", "Chunks merged into the live arrays.", st.LiveChunks)
			gauge(rw, "pixelcraft_ready_chunks", "Chunks waiting to be merged.", st.ReadyChunks)
			gauge(rw, "pixelcraft_pending_loads", "Chunk loads queued or in flight.", st.PendingLoads)
			gauge(rw, "pixelcraft_particles", "Live particles.", st.Particles)
			gauge(rw, "pixelcraft_bodies", "Rigid bodies.", st.Bodies)
			gauge(rw, "pixelcraft_despawned_fluid", "Fluid removed below the minimum value.", st.DespawnedFluid)
			gauge(rw, "pixelcraft_step_ms", "Duration of the last step.", st.StepMillis)
		}
		counter(rw, "pixelcraft_saves_total", "Periodic world saves.", rt.saves.Load())
		counter(rw, "pixelcraft_save_errors_total", "Failed periodic world saves.", rt.saveErrs.Load())
		counter(rw, "pixelcraft_backups_total", "World backups written.", rt.backups.Load())
		if rt.obs != nil {
			gauge(rw, "pixelcraft_observers", "Connected observers.", rt.obs.Sessions())
		}
		if rt.sinks != nil {
			rt.sinks.writeMetrics(rw)
		}
	}
}

func (s *sinks) writeMetrics(rw http.ResponseWriter) {
	if s.sqlite != nil {
		st := s.sqlite.Stats()
		gauge(rw, "pixelcraft_ledger_queue_depth", "SQLite ledger queue depth.", st.QueueDepth)
		counter(rw, "pixelcraft_ledger_dropped_saves_total", "Save records dropped on a full queue.", st.DropSaveTotal)
		counter(rw, "pixelcraft_ledger_dropped_corruptions_total", "Corruption records dropped on a full queue.", st.DropCorruptionTotal)
	}
	if s.remote != nil {
		st := s.remote.Stats()
		counter(rw, "pixelcraft_remote_ledger_sent_total", "Events accepted by the remote ledger.", st.SentTotal)
		counter(rw, "pixelcraft_remote_ledger_flush_fail_total", "Failed remote ledger flushes.", st.FlushFailTotal)
		counter(rw, "pixelcraft_remote_ledger_dropped_total", "Events dropped before sending.", st.QueueDroppedTotal+st.RetainDropTotal)
	}
	if s.mirror != nil {
		st := s.mirror.Stats()
		gauge(rw, "pixelcraft_mirror_queue_depth", "Object mirror queue depth.", st.QueueDepth)
		counter(rw, "pixelcraft_mirror_coalesced_total", "Uploads merged into a pending one.", st.CoalescedTotal)
		counter(rw, "pixelcraft_mirror_dropped_total", "Uploads dropped on a full queue.", st.DroppedTotal)
		counter(rw, "pixelcraft_mirror_upload_success_total", "Successful uploads.", st.UploadSuccessTotal)
		counter(rw, "pixelcraft_mirror_upload_fail_total", "Uploads failed after retry.", st.UploadFailTotal)
	}
}

func gauge(rw http.ResponseWriter, name, help string, v any) { metric(rw, "gauge", name, help, v) }

func counter(rw http.ResponseWriter, name, help string, v any) { metric(rw, "counter", name, help, v) }

func metric(rw http.ResponseWriter, kind, name, help string, v any) {
	fmt.Fprintf(rw, "# HELP %s %s\n# TYPE %s %s\n%s %v\n", name, help, name, kind, name, v)
}
