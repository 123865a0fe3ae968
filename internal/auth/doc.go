// Package auth provides PIN-based operator access for a dryer terminal.
//
// It implements a small role model (staff, manager) with:
//   - Timed PIN lockout after repeated failures within an attempt window
//   - A single persisted session with absolute and inactivity deadlines
//   - Activity monitoring that forces logout when a deadline passes
//   - Static permission sets per role, with a read-only designation
//
// PINs may be configured in plain text or as Argon2id PHC strings.
//
// Session, draft and attempt records live in a kvstore.Store so they
// survive a restart of the terminal when backed by SQLite.
package auth
