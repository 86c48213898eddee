// Package graph provides the core data model for cascade.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import graph; graph imports nothing internal. This keeps
// the data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Unit and Graph values are plain data; cloning is explicit and deep
//   - Statuses only ever advance (pending -> running -> terminal)
//   - All JSON tags use snake_case
package graph
