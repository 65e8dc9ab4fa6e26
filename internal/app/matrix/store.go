package matrix

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Document is the serialized form of a matrix.
type Document struct {
	ExportedAt time.Time              `json:"exportedAt"`
	Entries    []contract.MatrixEntry `json:"entries"`
}

func (m *Matrix) Export() ([]byte, error) {
	doc := Document{ExportedAt: m.now(), Entries: m.All()}
	if doc.Entries == nil {
		doc.Entries = []contract.MatrixEntry{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal matrix")
	}
	return data, nil
}

// Import adds every entry of an exported document, keeping LastTested as exported.
// Entries without consumer and provider names and versions are discarded. It returns
// the number of entries imported.
func (m *Matrix) Import(data []byte) (int, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, errors.Wrap(err, "unable to parse matrix document")
	}

	imported := 0
	for n, e := range doc.Entries {
		if !complete(e) {
			log.WithFields(log.Fields{"index": n}).Warn("discarding matrix entry without consumer and provider versions")
			continue
		}
		e = normalize(e)
		m.entries.Store(e.Key(), e)
		imported++
	}
	m.metrics.MatrixSize(m.Len())
	return imported, nil
}

// FileStore persists a matrix as an exported document on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the matrix to a temporary file and renames it over the target, so a
// reader never sees a partial document.
func (s *FileStore) Save(m *Matrix) error {
	data, err := m.Export()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "unable to create matrix directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "unable to create matrix file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to write matrix file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to write matrix file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "unable to replace matrix file")
	}

	log.Debugf("saved %d matrix entries to %s", m.Len(), s.path)
	return nil
}

// Load imports the stored document into m. A missing file is not an error.
func (s *FileStore) Load(m *Matrix) (int, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "unable to read matrix file %s", s.path)
	}
	return m.Import(data)
}
