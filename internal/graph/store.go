// internal/graph/store.go
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidEntity is returned when add_node/add_relationship is given a name
// that fails IsValidEntity.
var ErrInvalidEntity = errors.New("graph: name fails entity validity filter")

// Store is the process-wide temporal knowledge graph client. It owns its own
// locking via the underlying *gorm.DB connection pool (each method issues
// its own transaction), matching the "singleton graph client... provides its
// own locking" resource model.
type Store struct {
	db       *gorm.DB
	entities EntityExtractor
}

// NewStore opens the graph store against an existing GORM connection and
// ensures its tables exist.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Node{}, &Edge{}); err != nil {
		return nil, fmt.Errorf("failed to migrate graph tables: %w", err)
	}
	log.Printf("[GraphStore] ready")
	return &Store{db: db, entities: noopEntityExtractor{}}, nil
}

// SetEntityExtractor wires a named-entity extractor into query entry-point
// linking (see EntityExtractor in search.go). Optional: a Store built via
// NewStore already has a working no-op default.
func (s *Store) SetEntityExtractor(e EntityExtractor) {
	if e == nil {
		e = noopEntityExtractor{}
	}
	s.entities = e
}

// AddNode upserts a typed entity. Returns ErrInvalidEntity without writing
// anything if name fails the validity filter.
func (s *Store) AddNode(name, userID, nodeType string, properties map[string]interface{}) error {
	if !IsValidEntity(name) {
		return ErrInvalidEntity
	}
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		propsJSON = []byte("{}")
	}
	now := time.Now().UTC()

	var existing Node
	err = s.db.Where("name = ? AND user_id = ?", name, userID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		node := Node{
			Name:       name,
			UserID:     userID,
			NodeType:   nodeType,
			Properties: string(propsJSON),
			CreatedAt:  now,
			LastSeen:   now,
		}
		if err := s.db.Create(&node).Error; err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up node: %w", err)
	}

	existing.LastSeen = now
	if nodeType != "" {
		existing.NodeType = nodeType
	}
	if properties != nil {
		existing.Properties = string(propsJSON)
	}
	return s.db.Save(&existing).Error
}

// AddRelationshipDynamic creates a relationship with a dynamically-sanitized
// label. Idempotent w.r.t. (from,to,label): repeated calls overwrite the
// confidence (and properties, when given) of the active edge rather than
// duplicating rows.
func (s *Store) AddRelationshipDynamic(from, to, label, userID string, confidence float64, properties map[string]interface{}) error {
	if !IsValidEntity(from) || !IsValidEntity(to) {
		return ErrInvalidEntity
	}
	safeLabel := SanitizeLabel(label)
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		propsJSON = []byte("{}")
	}

	var existing Edge
	err = s.db.Where("from_name = ? AND to_name = ? AND label = ? AND user_id = ? AND is_active = ?",
		from, to, safeLabel, userID, true).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		edge := Edge{
			FromName:   from,
			ToName:     to,
			UserID:     userID,
			Label:      safeLabel,
			Confidence: confidence,
			Properties: string(propsJSON),
			IsActive:   true,
			CreatedAt:  time.Now().UTC(),
		}
		return s.db.Create(&edge).Error
	}
	if err != nil {
		return fmt.Errorf("failed to look up edge: %w", err)
	}

	existing.Confidence = confidence
	if properties != nil {
		existing.Properties = string(propsJSON)
	}
	return s.db.Save(&existing).Error
}

// InvalidateRelationships soft-deletes every currently-active edge from
// entity E on label L (sanitized) for the given user, marking is_active=false
// and stamping invalidated_at. Used when newer information supersedes an
// existing fact ("X used to work at A", now "X works at B").
func (s *Store) InvalidateRelationships(entity, label, userID string) (int64, error) {
	safeLabel := SanitizeLabel(label)
	now := time.Now().UTC()
	tx := s.db.Model(&Edge{}).
		Where("from_name = ? AND label = ? AND user_id = ? AND is_active = ?", entity, safeLabel, userID, true).
		Updates(map[string]interface{}{"is_active": false, "invalidated_at": now})
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to invalidate relationships: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// GetRecentActivitySummary returns the most recently-touched nodes for a
// user within the given window, for display/digest purposes.
func (s *Store) GetRecentActivitySummary(userID string, days int, limit int) ([]Node, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	var nodes []Node
	err := s.db.Where("user_id = ? AND last_seen >= ?", userID, since).
		Order("last_seen DESC").Limit(limit).Find(&nodes).Error
	return nodes, err
}

// PruneStaleNodes removes orphaned nodes (degree <= min_degree, i.e. strictly
// fewer than min_degree+1 neighbors, per the spec's resolved semantics) older
// than max_age_days, plus any node that retroactively fails the validity
// filter, in batches of 50. Idempotent: running twice in a row removes 0 on
// the second pass.
func (s *Store) PruneStaleNodes(userID string, maxAgeDays int, minDegree int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	var candidates []Node
	if err := s.db.Where("user_id = ? AND last_seen < ?", userID, cutoff).Find(&candidates).Error; err != nil {
		return 0, fmt.Errorf("failed to list prune candidates: %w", err)
	}

	removed := 0
	batch := make([]uint, 0, 50)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.db.Delete(&Node{}, batch).Error; err != nil {
			return err
		}
		removed += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, n := range candidates {
		degree, err := s.degree(n.Name, userID)
		if err != nil {
			continue
		}
		invalid := !IsValidEntity(n.Name)
		if degree <= minDegree || invalid {
			batch = append(batch, n.ID)
			if len(batch) >= 50 {
				if err := flush(); err != nil {
					return removed, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return removed, err
	}
	log.Printf("[GraphStore] pruned %d stale node(s) for user=%s", removed, userID)
	return removed, nil
}

func (s *Store) degree(name, userID string) (int, error) {
	var count int64
	err := s.db.Model(&Edge{}).
		Where("(from_name = ? OR to_name = ?) AND user_id = ? AND is_active = ?", name, name, userID, true).
		Count(&count).Error
	return int(count), err
}
