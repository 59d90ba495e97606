package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/skydrive-app/skydrive/internal/logging"
)

// CLIStorage drives an rclone-compatible binary. The remote is the
// configured remote name including the trailing colon, e.g. "skydrive:".
type CLIStorage struct {
	binary string
	remote string
	logger logging.Logger
}

func NewCLIStorage(binary, remote string, logger logging.Logger) *CLIStorage {
	if !strings.HasSuffix(remote, ":") {
		remote += ":"
	}
	if logger == nil {
		logger = logging.NewDefault("", false)
	}
	return &CLIStorage{binary: binary, remote: remote, logger: logger}
}

func (s *CLIStorage) Remote() string { return s.remote }

// ListAll starts `lsjson --recursive --fast-list` and hands the caller the
// command's stdout. Closing the reader kills the process, which is how the
// indexer cancels a listing mid-stream.
func (s *CLIStorage) ListAll(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, s.binary, "lsjson", "--recursive", "--fast-list", s.remote)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("lsjson pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s lsjson: %w", s.binary, err)
	}
	s.logger.Debug(ctx, "remote listing started", "remote", s.remote)
	return &cmdReader{ReadCloser: stdout, cmd: cmd}, nil
}

// cmdReader ties the lifetime of the child process to the reader.
type cmdReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (r *cmdReader) Close() error {
	r.ReadCloser.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	// Wait may report the kill or a broken pipe; either way the stream is done.
	_ = r.cmd.Wait()
	return nil
}

func (s *CLIStorage) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	out, err := s.run(ctx, "lsjson", s.join(dir))
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, fmt.Errorf("parse lsjson output: %w", err)
	}
	return entries, nil
}

func (s *CLIStorage) Cat(ctx context.Context, path string) ([]byte, error) {
	return s.run(ctx, "cat", s.join(path))
}

func (s *CLIStorage) CopyTo(ctx context.Context, localFile, remotePath string) error {
	_, err := s.run(ctx, "copyto", localFile, s.join(remotePath))
	return err
}

func (s *CLIStorage) Mkdir(ctx context.Context, dir string) error {
	_, err := s.run(ctx, "mkdir", s.join(dir))
	return err
}

func (s *CLIStorage) DeleteFile(ctx context.Context, path string) error {
	_, err := s.run(ctx, "deletefile", s.join(path))
	return err
}

func (s *CLIStorage) join(path string) string {
	return s.remote + strings.TrimPrefix(path, "/")
}

func (s *CLIStorage) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s %s: %s", s.binary, args[0], msg)
	}
	return stdout.Bytes(), nil
}
