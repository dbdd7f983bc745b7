package station

import "context"

// Algorithm is the capability surface a pluggable rate control module must
// provide. Configure runs briefly and returns an opaque state object; Run is
// the algorithm's main loop, started as its own goroutine seeded with that
// state, and is expected to block until its context is cancelled. A Run that
// returns on its own is treated as an implicit stop of the control task.
type Algorithm interface {
	Configure(ctx context.Context, sta *Station) (any, error)
	Run(ctx context.Context, state any) error
}

// PauseResumer is the optional pause/resume capability pair, checked once at
// attach time. Without it, resuming a paused task re-runs Configure from
// scratch. Resume alone is responsible for re-asserting manual modes; the
// core never restores them automatically.
type PauseResumer interface {
	Pause(ctx context.Context, state any) error
	Resume(ctx context.Context, state any) error
}
