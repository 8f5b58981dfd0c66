// Package livesvn spawns svnadmin/svnrdump as a subprocess and hands
// its stdout to the dump decoder, so a conversion can run directly
// against a repository URL or an on-disk repository without a
// separately materialized dump file first. The command actually run is
// logged via shellquote.Join so it can be reproduced by hand.
package livesvn

import (
	"fmt"
	"io"
	"os/exec"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/svn2git/svn2git/internal/dump"
	"github.com/svn2git/svn2git/internal/logging"
)

// Source is a live svnadmin/svnrdump dump stream.
type Source struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *dump.Reader
}

// FromLocalRepository spawns `svnadmin dump <path>` against a local
// repository on disk.
func FromLocalRepository(path string, log *logging.Logger) (*Source, error) {
	return spawn(exec.Command("svnadmin", "dump", "--quiet", path), log)
}

// FromRemoteURL spawns `svnrdump dump <url>` against a remote (or
// file://) repository reachable over the network.
func FromRemoteURL(url string, log *logging.Logger) (*Source, error) {
	return spawn(exec.Command("svnrdump", "dump", url), log)
}

func spawn(cmd *exec.Cmd, log *logging.Logger) (*Source, error) {
	if log != nil {
		log.Debugf("spawning %s", shellquote.Join(cmd.Args...))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("livesvn: stdout pipe: %w", err)
	}
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("livesvn: starting %s: %w", cmd.Path, err)
	}
	r, err := dump.NewReader(stdout)
	if err != nil {
		stdout.Close()
		cmd.Wait()
		return nil, err
	}
	return &Source{cmd: cmd, stdout: stdout, reader: r}, nil
}

// Next delegates to the underlying dump.Reader.
func (s *Source) Next() (*dump.Revision, error) {
	return s.reader.Next()
}

// Close waits for the subprocess to exit and surfaces a non-zero exit
// as an error.
func (s *Source) Close() error {
	s.reader.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("livesvn: %s: %w", s.cmd.Path, err)
	}
	return nil
}
