package image

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"

	"github.com/objectir/objectir/vm"
)

// ErrNotFound indicates the requested hash is not in the store.
var ErrNotFound = errors.New("image: method not found")

// Store is a sqlite-backed content store for compiled methods, keyed by
// their canonical content hash.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (creating if needed) a content store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("image: opening store: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("image: setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS methods (
		hash      TEXT PRIMARY KEY,
		signature TEXT NOT NULL,
		body      BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("image: creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores one method under its content hash. Storing the same method
// twice is a no-op; the hash keys identical content.
func (s *Store) Put(m *vm.MethodDescriptor) ([32]byte, error) {
	data, err := MarshalMethod(m)
	if err != nil {
		return [32]byte{}, err
	}
	hash, err := MethodHash(m)
	if err != nil {
		return [32]byte{}, err
	}
	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO methods (hash, signature, body) VALUES (?, ?, ?)`,
		fmt.Sprintf("%x", hash), m.Signature().String(), data,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("image: storing %s: %w", m.Signature(), err)
	}
	return hash, nil
}

// PutRegistry stores every lowered method of a published registry.
func (s *Store) PutRegistry(reg *vm.Registry) (int, error) {
	n := 0
	for _, m := range sortedMethods(reg) {
		if m.Host != nil {
			continue
		}
		if _, err := s.Put(m); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Get fetches the wire form of a method by hash.
func (s *Store) Get(hash [32]byte) (*WireMethod, error) {
	var data []byte
	err := s.db.QueryRow(
		`SELECT body FROM methods WHERE hash = ?`, fmt.Sprintf("%x", hash),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("image: fetching %x: %w", hash, err)
	}
	var wm WireMethod
	if err := cbor.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("image: decoding %x: %w", hash, err)
	}
	return &wm, nil
}

// Has reports whether a hash is present.
func (s *Store) Has(hash [32]byte) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM methods WHERE hash = ?`, fmt.Sprintf("%x", hash),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("image: probing %x: %w", hash, err)
	}
	return true, nil
}

// Signatures lists the stored methods as signature strings.
func (s *Store) Signatures() ([]string, error) {
	rows, err := s.db.Query(`SELECT signature FROM methods ORDER BY signature`)
	if err != nil {
		return nil, fmt.Errorf("image: listing store: %w", err)
	}
	defer rows.Close()

	var sigs []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("image: listing store: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}
