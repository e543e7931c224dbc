// Package archiver assembles the electric-organ release payload and produces
// the distributable archives.
//
// A run stages the two frontend binaries under their distribution names
// together with the extras files in a throwaway directory, snapshots that
// directory into a .zip and a .tar.gz archive, and moves both into the
// output directory only once they are complete.
package archiver
