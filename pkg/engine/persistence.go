package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/sirupsen/logrus"
)

// Sealer encrypts collection files at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Persistence handles the disk I/O for the MemStore.
// Each collection lives in its own <collection>.json file.
type Persistence struct {
	DataDir string
	// Sealer, when set, encrypts every file written and decrypts every file loaded.
	Sealer  Sealer
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	written map[string]uint64
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir, written: make(map[string]uint64)}, nil
}

// SaveCollection writes a single collection to a JSON file atomically.
// Snapshots older than the last one written (by seq) are dropped.
func (p *Persistence) SaveCollection(collection string, data map[string]recordstore.Record, seq uint64) error {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if seq != 0 && seq < p.written[collection] {
		return nil
	}

	filePath := filepath.Join(p.DataDir, fmt.Sprintf("%s.json", collection))
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if p.Sealer != nil {
		if bytes, err = p.Sealer.Seal(bytes); err != nil {
			return fmt.Errorf("seal %s: %w", collection, err)
		}
	}
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}
	// Rename is atomic on POSIX filesystems: readers see the old file or the new one.
	if err := os.Rename(tempPath, filePath); err != nil {
		return err
	}
	p.written[collection] = seq
	return nil
}

// LoadAll returns all collection data found in the data directory.
// Unreadable or corrupt files are skipped with a warning.
func (p *Persistence) LoadAll() (map[string]map[string]recordstore.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string]map[string]recordstore.Record)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		collection := strings.TrimSuffix(file.Name(), ".json")
		if recordstore.ValidateCollection(collection) != nil {
			logrus.Warnf("skipping file %s: not a collection name", file.Name())
			continue
		}

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			logrus.WithError(err).Warnf("could not read collection file %s", file.Name())
			continue
		}
		if p.Sealer != nil {
			if content, err = p.Sealer.Open(content); err != nil {
				logrus.WithError(err).Warnf("could not open sealed collection file %s", file.Name())
				continue
			}
		}

		var data map[string]recordstore.Record
		if err := json.Unmarshal(content, &data); err != nil {
			logrus.WithError(err).Warnf("could not unmarshal collection file %s", file.Name())
			continue
		}
		if data == nil {
			data = make(map[string]recordstore.Record)
		}
		allData[collection] = data
	}
	return allData, nil
}
