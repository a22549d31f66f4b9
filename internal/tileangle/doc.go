// Package tileangle reconstructs track angles at scintillating tiles.
//
// For every primary tile hit in a frame it either finds the nearest pixel hit
// from the same simulated track (Nearest mode) or builds a helix from the
// track's simulated initial state (Helix mode), and measures the resulting
// direction against the tile under one of the norm / theta / phi conventions.
//
// A Run is single-threaded and fully ordered: frames in index order, tile hits
// and candidate pixel hits in their native order. Tie-breaks depend on that
// order. All input is expected to be materialised before a run starts.
//
// Geometry and frame access go through the small interfaces in session.go so
// the ROOT reader, the SQLite geometry cache and test fixtures are
// interchangeable.
package tileangle
