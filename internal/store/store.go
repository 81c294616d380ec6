package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bootkeeper/internal/models"

	"github.com/boltdb/bolt"
)

var (
	bucketWorkflows = []byte("workflows")
	bucketProcesses = []byte("processes")
)

var ErrLocked = errors.New("registry is locked by another process")

/**
 * Store is the persisted role/workflow -> pid registry shared by the supervisor and the CLI
 * @description
 * - The bolt file is opened per operation, so no process keeps the file lock
 * - bolt's flock gives exclusion across processes, the mutex within one process
 * - Values are JSON encoded models
 */
type Store struct {
	path    string
	timeout time.Duration
	mutex   sync.Mutex
}

func New(path string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{path: path, timeout: timeout}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) open() (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("open %s: %w", s.path, ErrLocked)
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	return db, nil
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketWorkflows, bucketProcesses} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// RecordProcess stores the latest detail of a launched process under its name.
func (s *Store) RecordProcess(detail models.ProcessDetail) error {
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketProcesses), detail.Name, detail)
	})
}

func (s *Store) ListProcesses() ([]models.ProcessDetail, error) {
	var list []models.ProcessDetail
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProcesses)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var d models.ProcessDetail
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("decode process %s: %w", k, err)
			}
			list = append(list, d)
			return nil
		})
	})
	return list, err
}

func (s *Store) GetWorkflow(name string) (models.WorkflowDetail, bool, error) {
	var (
		wf    models.WorkflowDetail
		found bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkflows)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &wf)
	})
	return wf, found, err
}

// ListWorkflows returns every recorded workflow sorted by name.
func (s *Store) ListWorkflows() ([]models.WorkflowDetail, error) {
	var list []models.WorkflowDetail
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkflows)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var wf models.WorkflowDetail
			if err := json.Unmarshal(v, &wf); err != nil {
				return fmt.Errorf("decode workflow %s: %w", k, err)
			}
			list = append(list, wf)
			return nil
		})
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, err
}

/**
 * Read-modify-write one workflow record under the registry lock
 * @param {string} name - Workflow name
 * @param {func} fn - Receives the current record (zero value when absent) and may change it
 * @returns {error} fn's error, in which case nothing is written
 * @description
 * - fn runs inside a bolt write transaction, other processes block on the file lock meanwhile
 * - This is the compare-and-set used for at-most-one running process per workflow
 */
func (s *Store) UpdateWorkflow(name string, fn func(wf *models.WorkflowDetail, exists bool) error) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkflows)
		var wf models.WorkflowDetail
		data := b.Get([]byte(name))
		exists := data != nil
		if exists {
			if err := json.Unmarshal(data, &wf); err != nil {
				return fmt.Errorf("decode workflow %s: %w", name, err)
			}
		}
		wf.Name = name
		if err := fn(&wf, exists); err != nil {
			return err
		}
		wf.UpdatedAt = time.Now()
		return putJSON(b, name, wf)
	})
}
