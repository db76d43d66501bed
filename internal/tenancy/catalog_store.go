package tenancy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JoshuaRamirez/acs-gateway/pkg/fs"
)

// catalogEntityID is the fixed entity key the tenant catalog is stored
// under in the configured fs.Backend — there is exactly one catalog
// per gateway deployment, not one entity per tenant, since the whole
// list is rewritten on every mutation rather than updated incrementally,
// trading a few extra bytes written per call for a simpler store.
const catalogEntityID = "tenant_catalog"

// CatalogStore persists the tenant catalog through an fs.Backend (local
// filesystem or S3-compatible), so a restarted gateway recovers tenants
// added at runtime through admin endpoints rather than only the ones
// seeded from the YAML config file.
type CatalogStore struct {
	backend fs.Backend
}

// NewCatalogStore wraps backend for catalog persistence.
func NewCatalogStore(backend fs.Backend) *CatalogStore {
	return &CatalogStore{backend: backend}
}

// Load reads the persisted catalog, returning an empty slice (not an
// error) when nothing has been persisted yet.
func (s *CatalogStore) Load() ([]Descriptor, error) {
	if !s.backend.FileExists(catalogEntityID) {
		return nil, nil
	}
	data, err := s.backend.ReadFile(catalogEntityID)
	if err != nil {
		if errors.Is(err, fs.ErrFileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("tenancy: loading catalog: %w", err)
	}
	var descriptors []Descriptor
	if err := json.Unmarshal(data.Blob, &descriptors); err != nil {
		return nil, fmt.Errorf("tenancy: parsing catalog: %w", err)
	}
	return descriptors, nil
}

// Save overwrites the persisted catalog with descriptors.
func (s *CatalogStore) Save(descriptors []Descriptor) error {
	data, err := json.Marshal(descriptors)
	if err != nil {
		return fmt.Errorf("tenancy: encoding catalog: %w", err)
	}
	nextVersion := 1
	if existing, err := s.backend.ReadFile(catalogEntityID); err == nil {
		nextVersion = existing.Metadata.Version + 1
	}
	metadata := fs.FileMetadata{
		WriterID:  "gateway",
		Timestamp: time.Now().UTC(),
		Database:  "tenancy",
		EntityKey: catalogEntityID,
		Version:   nextVersion,
	}
	if err := s.backend.WriteFile(catalogEntityID, data, metadata); err != nil {
		return fmt.Errorf("tenancy: persisting catalog: %w", err)
	}
	return nil
}
