package lightbake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine runs unification, clustering, scoring and baking over one light
// set. Runs are serialized; the engine holds no state between them.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	geo      GeometryAccessor
	log      Logger
	progress ProgressFunc
	bake     BakeOptions
	workers  int
	prof     *Profiler
}

// RunResult holds everything a run produced. Bake is nil in analyze mode.
type RunResult struct {
	Mode          RunMode
	Lights        []UnifiedLight
	Clusters      []Cluster
	LightScores   []ScoreRecord
	ClusterScores []ScoreRecord
	Diagnostics   Diagnostics
	Bake          *BakeResult
	Timings       map[string]time.Duration
}

// Dump builds the diagnostics listing of the run.
func (r *RunResult) Dump() *Dump {
	return BuildDump(r.Clusters, r.ClusterScores, r.LightScores, r.Diagnostics)
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Workers() int { return e.workers }

// Run processes entities in the given mode. Per-light conversion problems
// are returned in RunResult.Diagnostics. Geometry failures, capacity errors
// and cancellation return a nil result.
func (e *Engine) Run(ctx context.Context, entities []LightEntity, mode RunMode) (*RunResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("run: %v", mode)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prof = NewProfiler()
	if ctx.Err() != nil {
		return nil, canceled(ctx)
	}
	res := &RunResult{Mode: mode}
	e.log.Infof("run %s: %d light entities, %d workers", mode, len(entities), e.workers)

	e.prof.BeginScope(StageUnify)
	unified := UnifyAll(entities, e.cfg)
	e.prof.EndScope(StageUnify)
	res.Lights, res.Diagnostics = unified.Lights, unified.Diagnostics
	for _, d := range res.Diagnostics {
		e.log.Warnf("%s: dropped: %v", StageUnify, d)
	}
	e.prof.SetCount("lights", len(res.Lights))
	e.prof.SetCount("dropped", len(res.Diagnostics))

	clusters, err := e.cluster(ctx, res.Lights, entities)
	if err != nil {
		e.log.Errorf("run %s aborted: %v", mode, err)
		return nil, err
	}
	res.Clusters = clusters

	e.prof.BeginScope(StageScore)
	res.LightScores = ScoreLights(res.Lights, entities, e.cfg)
	res.ClusterScores = ScoreClusters(res.Clusters, res.Lights, e.cfg)
	e.prof.EndScope(StageScore)
	if ctx.Err() != nil {
		return nil, canceled(ctx)
	}

	if mode.Bakes() {
		e.prof.BeginScope(StageBake)
		res.Bake, err = BuildBake(res.Clusters, res.Lights, res.ClusterScores, e.cfg, e.bake)
		e.prof.EndScope(StageBake)
		if err != nil {
			e.log.Errorf("run %s aborted: %v", mode, err)
			return nil, err
		}
	}

	res.Timings = e.prof.Timings()
	if z := zapLogger(e.log); z != nil {
		z.Info("run finished",
			zap.Stringer("mode", mode),
			zap.Int("lights", len(res.Lights)),
			zap.Int("dropped", len(res.Diagnostics)),
			zap.Int("clusters", len(res.Clusters)),
			zap.Bool("baked", res.Bake != nil),
		)
	} else {
		e.log.Infof("run %s finished: %d lights, %d clusters", mode, len(res.Lights), len(res.Clusters))
	}
	if e.log.DebugEnabled() {
		e.log.Debugf("%s", e.prof.GetStatsString())
	}
	return res, nil
}
