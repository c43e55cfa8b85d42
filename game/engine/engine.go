package engine

// Engine provides the main interface for game operations
type Engine interface {
	// Input
	Move(player, dx, dy int) (*ActionResult, error)
	Activate(player int, pos Position) (*ActionResult, error)
	Point(player int, pos Position) (*ActionResult, error)

	// Clock and lifecycle
	Tick() error
	Pause() error
	Resume() error
	Shutdown()
	Paused() bool
	Over() bool
	Result() *Result

	// Persistence
	Save() (*Record, error)
	Load(rec *Record) error

	// Output
	Snapshot() *Snapshot
	Mode() Mode
	Config() *GameConfig
}

var _ Engine = (*Session)(nil)
