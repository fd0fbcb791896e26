// Package models defines domain entities and persistence interfaces for the noncmra verification pipeline.
//
// The package contains two categories of types:
//
// 1. Pipeline values: immutable records passed between stages of a run
//   - [Address] : US street address with a normalized identity ([Address.Key])
//   - [Mailbox] : Catalog entry carrying its original catalog index
//   - [Verification] : Provider verdict (CMRA flag, RDI, match code)
//   - [Outcome] : Tagged terminal result of one address (verified, rejected, failed, skipped)
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [RunRecord] : Verification run history with per-run tallies
//
// Persistent entities implement the Model interface providing ID, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
