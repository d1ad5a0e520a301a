// Package core implements the synchronization monitor for the dining table.
//
// A Table keeps the state of every philosopher seated around a ring and a
// single mutex guarding it. Each philosopher owns a condition variable bound
// to that mutex, so a hungry philosopher sleeps on its own condition until a
// neighbour finishing its meal hands it the right to eat.
package core
