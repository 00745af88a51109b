// Package grid is the in-memory table store: ordered rows of immutable cells
// plus the column model.
//
// # Ownership
//
// A [Grid] owns its rows and columns exclusively. Cells are never mutated in
// place; a mutation replaces the *[Cell] pointer held by a [Row]. The only
// code expected to call the mutating methods (SetCell, InsertRows, ...) is the
// change implementations in package history/changes, which run under the
// grid's mutation lock.
//
// # Precomputes
//
// Each [Column] carries a cache of derived objects keyed by string (numeric bin
// indices, nominal groupers). Entries are immutable once published and are
// dropped wholesale by [Column.ClearPrecomputes] whenever a cell in that
// column changes.
//
// # Records
//
// A record is a maximal run of contiguous rows starting at a row whose key
// cell (the first column) is non-blank. Rows with a blank key cell continue
// the previous record.
package grid
