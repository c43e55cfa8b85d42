// Package session provides session management and record storage for the
// QLink server.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - Session lifecycle management and expiry
//   - Record persistence on the file system, Redis or Postgres
//
// Core Types:
//
// Manager is the main session manager that handles all session operations.
// SessionPersistence stores game records by id. FilePersistence writes one
// "<id>.txt" file per record, RedisPersistence one string key per record and
// PostgresPersistence one table row per record. All three also satisfy
// service.RecordStore and back the saved games of the service layer.
//
// Session Identifiers:
//
// Generated session IDs are 4 lowercase hex characters from crypto/rand.
// Lookups are case-insensitive.
//
// Concurrency:
//
// The manager is safe for concurrent use. Access to a session's engine goes
// through service.Session.Do, which serializes callers per session.
//
// Usage:
//
//	persistence, err := session.NewFilePersistence("saves/sessions")
//	manager := session.NewManagerWithPersistence(persistence, configs.DefaultFor)
//	if err := manager.LoadPersistedSessions(); err != nil {
//		log.Warn(err)
//	}
//
//	sess, err := manager.Create("", "classic", config)
//	sess, err = manager.Get(sessionID)
//
//	// on shutdown
//	manager.SaveAllSessions()
//
// Restored sessions are paused. Their state comes from the record and their
// rules from the ConfigResolver given for the record's mode.
package session
