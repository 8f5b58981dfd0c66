// Package svnerr defines the error-kind taxonomy used across the
// conversion engine and a throw/catch discipline for aborting a stage
// without losing the class of failure that caused the abort: Throw
// builds a typed error and panics with it, Catch recovers only the
// class it was told to expect and re-panics anything else so an
// unrelated failure is never silently swallowed.
package svnerr

import "fmt"

// Class identifies which part of the conversion pipeline an error
// belongs to, and whether it's fatal or recoverable.
type Class string

const (
	// ClassParse covers malformed dumps, delta-apply failures, and
	// impossible mirror actions. Fatal; report revision and path.
	ClassParse Class = "parse"
	// ClassConfig covers glob syntax errors, rename collisions, and
	// unknown `head` targets. Fatal, detected pre-stream.
	ClassConfig Class = "config"
	// ClassCollision covers a branch/tag rename collision discovered
	// while the conversion runs, when a second live branch is created
	// under a Git name another live branch already owns.
	ClassCollision Class = "collision"
	// ClassPack covers pack writer and filesystem I/O failures.
	ClassPack Class = "pack"
)

// Error is a classified conversion failure.
type Error struct {
	Class   Class
	Rev     int // SVN revision, 0 if not applicable
	Path    string
	message string
}

func (e *Error) Error() string {
	switch {
	case e.Rev != 0 && e.Path != "":
		return fmt.Sprintf("%s: r%d %s: %s", e.Class, e.Rev, e.Path, e.message)
	case e.Rev != 0:
		return fmt.Sprintf("%s: r%d: %s", e.Class, e.Rev, e.message)
	default:
		return fmt.Sprintf("%s: %s", e.Class, e.message)
	}
}

// Throw builds a classified error and panics with it. Call sites that
// want an ordinary error return instead should use New and return it;
// Throw is for deeply nested call paths where plumbing an error return
// through every frame would obscure the control flow more than a
// recovered panic does.
func Throw(class Class, rev int, path string, format string, args ...interface{}) {
	panic(&Error{Class: class, Rev: rev, Path: path, message: fmt.Sprintf(format, args...)})
}

// New builds a classified error without panicking.
func New(class Class, rev int, path string, format string, args ...interface{}) *Error {
	return &Error{Class: class, Rev: rev, Path: path, message: fmt.Sprintf(format, args...)}
}

// Catch recovers a panic of the given class and returns it as an error.
// Panics of any other class, or non-svnerr panics, are re-raised: a
// stage must only ever swallow the exact failure mode it knows how to
// handle.
func Catch(accept Class, recovered interface{}) error {
	if recovered == nil {
		return nil
	}
	if err, ok := recovered.(*Error); ok {
		if err.Class == accept {
			return err
		}
	}
	panic(recovered)
}
