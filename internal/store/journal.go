package store

import (
	"context"
	"fmt"

	"go-inventory-predict/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mutation is one key change of a committed transaction. Load returns the
// surviving keys as non-deleted mutations.
type Mutation struct {
	Collection string
	Key        string
	Value      []byte
	Deleted    bool
	Seq        uint64
}

// Journal persists commits of partition stores.
type Journal interface {
	Load(ctx context.Context, partition int) ([]Mutation, error)
	Apply(ctx context.Context, partition int, muts []Mutation) error
}

// GormJournal mirrors partition stores into the store_entries table.
type GormJournal struct {
	db *gorm.DB
}

func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db}
}

func (j *GormJournal) Migrate() error {
	return j.db.AutoMigrate(&model.StoreEntry{})
}

func (j *GormJournal) Load(ctx context.Context, partition int) ([]Mutation, error) {
	var rows []model.StoreEntry
	err := j.db.WithContext(ctx).
		Where("partition_id = ?", partition).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Mutation, 0, len(rows))
	for _, r := range rows {
		out = append(out, Mutation{
			Collection: r.Collection,
			Key:        r.EntryKey,
			Value:      []byte(r.Value),
			Seq:        r.Seq,
		})
	}
	return out, nil
}

// Apply writes one commit in a single database transaction.
func (j *GormJournal) Apply(ctx context.Context, partition int, muts []Mutation) error {
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range muts {
			if m.Deleted {
				err := tx.Where("partition_id = ? AND collection = ? AND entry_key = ?", partition, m.Collection, m.Key).
					Delete(&model.StoreEntry{}).Error
				if err != nil {
					return fmt.Errorf("delete %s/%s: %w", m.Collection, m.Key, err)
				}
				continue
			}

			row := model.StoreEntry{
				PartitionID: partition,
				Collection:  m.Collection,
				EntryKey:    m.Key,
				Value:       m.Value,
				Seq:         m.Seq,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "partition_id"}, {Name: "collection"}, {Name: "entry_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "seq", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("upsert %s/%s: %w", m.Collection, m.Key, err)
			}
		}
		return nil
	})
}
