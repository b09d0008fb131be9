package db

import (
	"context"
	"errors"

	dbmodels "github.com/gartstein/eagle/internal/taskmgr/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetSetting returns the value stored under key. ok is false when the key
// has never been written or was deleted.
func (r *Repository) GetSetting(ctx context.Context, key string) (value []byte, ok bool, err error) {
	var row dbmodels.Setting
	err = r.db.WithContext(ctx).Where("setting_key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, storeErr("get setting", err)
	}
	return row.Value, true, nil
}

// PutSetting stores value under key, replacing any previous value.
func (r *Repository) PutSetting(ctx context.Context, key string, value []byte) error {
	row := dbmodels.Setting{Key: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
	if err != nil {
		return storeErr("put setting", err)
	}
	return nil
}

// DeleteSetting removes key. Deleting a missing key is not an error.
func (r *Repository) DeleteSetting(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("setting_key = ?", key).Delete(&dbmodels.Setting{}).Error; err != nil {
		return storeErr("delete setting", err)
	}
	return nil
}
