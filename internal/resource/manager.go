package resource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"CollectLedger/internal/checksum"
	"CollectLedger/internal/logger"
)

const (
	scratchPrefix    = "upload-"
	defaultMaxAge    = time.Hour
	defaultHeartbeat = 5 * time.Minute
)

// ScratchFile is an uploaded file materialised on disk for the duration of
// one request.
type ScratchFile struct {
	Path string
	Name string
	Hash string
	Size int64
}

// Bytes reads the scratch file back.
func (f *ScratchFile) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// ResourceManager tracks the scratch files of in-flight uploads and removes
// leftovers that outlive their request.
type ResourceManager struct {
	resources         map[string]*ScratchFile
	mu                sync.RWMutex
	stopChan          chan struct{}
	stopOnce          sync.Once
	heartbeatInterval time.Duration
	dir               string
	maxAge            time.Duration
}

func NewResourceManagerService(cfg map[string]interface{}) *ResourceManager {
	interval := durationSetting(cfg, "heartbeat_interval", defaultHeartbeat)
	maxAge := durationSetting(cfg, "scratch_max_age", defaultMaxAge)
	dir, _ := cfg["scratch_dir"].(string)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "collectledger")
	}
	return &ResourceManager{
		resources:         make(map[string]*ScratchFile),
		stopChan:          make(chan struct{}),
		heartbeatInterval: interval,
		dir:               dir,
		maxAge:            maxAge,
	}
}

func durationSetting(cfg map[string]interface{}, key string, def time.Duration) time.Duration {
	switch v := cfg[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}

func (rm *ResourceManager) Name() string { return "resourcemanager" }

func (rm *ResourceManager) Start() error {
	if err := os.MkdirAll(rm.dir, 0o755); err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}
	logger.Audit("ResourceManager started, scratch dir %s", rm.dir)
	go rm.heartbeatLoop()
	return nil
}

func (rm *ResourceManager) Stop(ctx context.Context) error {
	rm.stopOnce.Do(func() { close(rm.stopChan) })
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for key, f := range rm.resources {
		os.Remove(f.Path)
		delete(rm.resources, key)
	}
	return nil
}

// Dir is the directory holding scratch files.
func (rm *ResourceManager) Dir() string { return rm.dir }

// MaxAge is how long a scratch file may live before the sweeper removes it.
func (rm *ResourceManager) MaxAge() time.Duration { return rm.maxAge }

func (rm *ResourceManager) heartbeatLoop() {
	ticker := time.NewTicker(rm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			logger.Log().WithField("active_uploads", len(rm.ListResources())).Debug("[ResourceManager] heartbeat")
		}
	}
}

// Acquire copies src into a new scratch file and hashes it on the way. The
// caller must Release the file on every exit path.
func (rm *ResourceManager) Acquire(src io.Reader, name string) (*ScratchFile, error) {
	if err := os.MkdirAll(rm.dir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(rm.dir, scratchPrefix+"*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return nil, err
	}
	hash, size, err := checksum.Copy(tmp, src)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	f := &ScratchFile{Path: tmp.Name(), Name: name, Hash: hash, Size: size}
	rm.AddResource(f)
	return f, nil
}

// Release deletes the scratch file and forgets it.
func (rm *ResourceManager) Release(f *ScratchFile) {
	if f == nil {
		return
	}
	rm.RemoveResource(f.Path)
	os.Remove(f.Path)
}

func (rm *ResourceManager) AddResource(f *ScratchFile) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.resources[f.Path] = f
}

func (rm *ResourceManager) GetResource(path string) (*ScratchFile, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	f, exists := rm.resources[path]
	return f, exists
}

func (rm *ResourceManager) RemoveResource(path string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.resources, path)
}

func (rm *ResourceManager) ListResources() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	keys := make([]string, 0, len(rm.resources))
	for key := range rm.resources {
		keys = append(keys, key)
	}
	return keys
}

// Sweep removes scratch files older than MaxAge that no request holds,
// returning how many were deleted.
func (rm *ResourceManager) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(rm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := now.Add(-rm.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), scratchPrefix) {
			continue
		}
		path := filepath.Join(rm.dir, e.Name())
		if _, held := rm.GetResource(path); held {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed, nil
}
