package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skydrive-app/skydrive/internal/filex"
)

// Job descriptors are small shell-style files, one per job id, consumed by
// the external sync executor. Their presence is the authority on whether a
// job is still configured: the registry reconciles itself against them on
// every load.

// descriptorPath returns <jobsDir>/<jobID>.conf.
func (r *Registry) descriptorPath(jobID string) string {
	return filepath.Join(r.jobsDir, jobID+".conf")
}

func (r *Registry) descriptorExists(jobID string) bool {
	return filex.Exists(r.descriptorPath(jobID))
}

func (r *Registry) writeDescriptor(j *SyncJobMetadata) error {
	content := fmt.Sprintf("LOCAL_PATH=%q\nREMOTE_PATH=%q\nSYNC_TYPE=%q\n",
		j.LocalPath, j.RemotePath, j.SyncType)
	if err := filex.WriteAtomic(r.descriptorPath(j.JobID), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write descriptor for job %s: %w", j.JobID, err)
	}
	return nil
}

func (r *Registry) removeDescriptor(jobID string) {
	if err := os.Remove(r.descriptorPath(jobID)); err != nil && !os.IsNotExist(err) {
		r.logger.Warn(r.bg(), "remove job descriptor", "job_id", jobID, "error", err)
	}
}

// parseDescriptor reads a KEY="value" descriptor file. Unknown keys are
// ignored; unquoted values are accepted for hand-edited files.
func parseDescriptor(path string) (local, remote, syncType string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", "", err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.TrimSpace(key) {
		case "LOCAL_PATH":
			local = value
		case "REMOTE_PATH":
			remote = value
		case "SYNC_TYPE":
			syncType = value
		}
	}
	return local, remote, syncType, nil
}

// listOrphanDescriptors returns descriptor files in jobsDir whose job id is
// not in known.
func (r *Registry) listOrphanDescriptors(known map[string]bool) []string {
	entries, err := os.ReadDir(r.jobsDir)
	if err != nil {
		return nil
	}

	var orphans []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".conf") {
			continue
		}
		id := strings.TrimSuffix(name, ".conf")
		if !known[id] {
			orphans = append(orphans, filepath.Join(r.jobsDir, name))
		}
	}
	return orphans
}

// cleanSyncCache removes cached transfer-tool state for a removed job. The
// bisync workdir keys its listing files on a "<local>..<remote>" token with
// path separators flattened.
func (r *Registry) cleanSyncCache(j *SyncJobMetadata) {
	if r.cacheDir == "" {
		return
	}
	token := cachePathToken(j.LocalPath) + ".." + cachePathToken(j.RemotePath)

	entries, err := os.ReadDir(r.cacheDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.Contains(e.Name(), token) {
			_ = os.Remove(filepath.Join(r.cacheDir, e.Name()))
		}
	}
}

func cachePathToken(p string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", " ", "_")
	return replacer.Replace(strings.Trim(p, "/"))
}
