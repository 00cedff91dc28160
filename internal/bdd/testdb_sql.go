package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/ufdr-service/internal/model"
	"github.com/chirino/ufdr-service/internal/testutil/cucumber"
	"gorm.io/gorm"
)

// SQLTestDB implements cucumber.TestDB for the GORM backed stores.
type SQLTestDB struct {
	DB *gorm.DB
}

var _ cucumber.TestDB = (*SQLTestDB)(nil)

func (d *SQLTestDB) ClearAll(ctx context.Context) error {
	for _, table := range []string{"chat_sessions", "artifacts", "case_assignments", "cases", "audit_logs", "evidence_files"} {
		if err := d.DB.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("cleanup: failed to delete from %s: %w", table, err)
		}
	}
	return nil
}

func (d *SQLTestDB) CountArtifacts(ctx context.Context, evidenceFileID string) (int, error) {
	var count int64
	err := d.DB.WithContext(ctx).Model(&model.Artifact{}).
		Where("evidence_file_id = ?", evidenceFileID).
		Count(&count).Error
	return int(count), err
}

func (d *SQLTestDB) IsSoftDeleted(ctx context.Context, evidenceFileID string) (bool, error) {
	var count int64
	err := d.DB.WithContext(ctx).Model(&model.EvidenceFile{}).
		Where("id = ? AND deleted_at IS NOT NULL", evidenceFileID).
		Count(&count).Error
	return count > 0, err
}
