package lightbake

import "fmt"

type EngineBuilder struct {
	engine *Engine
}

func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{engine: &Engine{
		cfg:  DefaultConfig(),
		geo:  OpenSpace{},
		log:  NewNopLogger(),
		prof: NewProfiler(),
	}}
}

func (b *EngineBuilder) UseConfig(cfg Config) *EngineBuilder {
	b.engine.cfg = cfg
	return b
}

func (b *EngineBuilder) UseLogger(log Logger) *EngineBuilder {
	if log != nil {
		b.engine.log = log
	}
	return b
}

// UseGeometry sets the accessor that answers occlusion queries. Without it
// the engine runs in open space.
func (b *EngineBuilder) UseGeometry(geo GeometryAccessor) *EngineBuilder {
	if geo != nil {
		b.engine.geo = geo
	}
	return b
}

func (b *EngineBuilder) UseProgress(fn ProgressFunc) *EngineBuilder {
	b.engine.progress = fn
	return b
}

func (b *EngineBuilder) UseBakeOptions(opts BakeOptions) *EngineBuilder {
	b.engine.bake = opts
	return b
}

func (b *EngineBuilder) Build() (*Engine, error) {
	e := b.engine
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	e.workers = workerCount(e.cfg)
	return e, nil
}
