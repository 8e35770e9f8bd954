package store

import (
	"fmt"
	"path/filepath"
	"sync"
)

// DBFileName is the database file created inside the repository directory.
const DBFileName = "mutations.db"

// Manager provides shared database access to prevent locking conflicts.
// bbolt takes an exclusive file lock, so every component of one process
// must share a single handle.
type Manager struct {
	db     *DB
	dbPath string
	refs   int
}

var (
	globalManager *Manager
	managerMu     sync.Mutex
)

// GetSharedDB returns a shared database connection for the given repository
// directory. Multiple calls with the same dir return the same connection.
// The connection is reference counted and closed when all references are
// released.
func GetSharedDB(repoDir string) (*SharedDB, error) {
	managerMu.Lock()
	defer managerMu.Unlock()

	dbPath := filepath.Join(repoDir, DBFileName)

	if globalManager == nil || globalManager.dbPath != dbPath {
		if globalManager != nil && globalManager.refs > 0 {
			return nil, fmt.Errorf("database %s still in use", globalManager.dbPath)
		}
		db, err := Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		globalManager = &Manager{db: db, dbPath: dbPath}
	}

	globalManager.refs++

	return &SharedDB{manager: globalManager, DB: globalManager.db}, nil
}

// SharedDB wraps a database connection with reference counting.
type SharedDB struct {
	manager *Manager
	*DB
	once sync.Once
}

// Close decrements the reference count and closes the underlying database
// when no more references exist. Closing twice is a no-op.
func (sdb *SharedDB) Close() error {
	if sdb.manager == nil {
		return nil
	}
	var err error
	sdb.once.Do(func() {
		managerMu.Lock()
		defer managerMu.Unlock()

		sdb.manager.refs--
		if sdb.manager.refs <= 0 {
			err = sdb.manager.close()
			if globalManager == sdb.manager {
				globalManager = nil
			}
		}
	})
	return err
}

func (m *Manager) close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
