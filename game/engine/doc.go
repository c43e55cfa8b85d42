// Package engine provides the core rules of the QLink tile-matching game.
//
// The engine package implements:
//   - A margin-bordered grid of typed tiles dealt in same-form pairs
//   - Link search between two tiles with at most two bends
//   - The per-cursor selection state machine, scoring and game-over scan
//   - Timed power-ups (time bonus, reshuffle, hint, teleport, freeze, inversion)
//   - A pausable countdown table driving the clock, spawner and effects
//   - The line-oriented save record
//
// Core Types:
//
// Session is the unit of play and persistence and implements Engine. Grid
// stores tiles; CanLink and FindPair search it without modifying it. Rules
// applies activations and moves for one or two cursors. Scheduler holds every
// countdown keyed by (kind, player). Record is the persisted form of a Session.
//
// Usage:
//
//	session, err := engine.NewSession(engine.DefaultConfig(engine.ModeSingle))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, _ := session.Move(engine.Player1, 1, 0)
//	_ = session.Tick()
//
//	_ = session.Pause()
//	rec, _ := session.Save()
//	_ = engine.EncodeRecord(os.Stdout, rec)
//
// Game Rules:
//
// Selecting two tiles of the same form removes both when a path of at most
// two right-angle bends runs between them over empty cells; the border
// margin is always empty and serves as an outer lane. The session ends when
// no pair can be linked or the clock runs out. In two-player sessions both
// cursors share one grid, freeze and inversion hit the opponent, and the
// higher score wins.
//
// Concurrency:
//
// A Session is single-threaded. Time only passes through Tick, so callers
// own the clock and must serialize every call.
package engine
