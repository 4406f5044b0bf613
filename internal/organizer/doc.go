// Package organizer computes canonical library paths for cataloged books and
// moves files into place.
package organizer
