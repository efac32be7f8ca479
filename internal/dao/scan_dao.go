package dao

import (
	"authfuzz/internal/models"

	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// HistoryQuery pages through durable scan records. Empty Status or Target
// match every row.
type HistoryQuery struct {
	Page   int
	Limit  int
	Status string
	Target string
}

func (q HistoryQuery) normalized() HistoryQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultHistoryLimit
	}
	if q.Limit > maxHistoryLimit {
		q.Limit = maxHistoryLimit
	}
	return q
}

type ScanDAO interface {
	SaveScan(scan *models.Scan) error
	GetScanByUUID(uuid string) (*models.Scan, error)
	UpdateScan(scan *models.Scan) error
	SetCapturedRecords(uuid string, n int) error
	ListHistory(q HistoryQuery) ([]models.Scan, int64, error)
}

type scanDAO struct {
	db *gorm.DB
}

func NewScanDAO(db *gorm.DB) ScanDAO {
	return &scanDAO{db: db}
}

func (dao *scanDAO) SaveScan(scan *models.Scan) error {
	return dao.db.Create(scan).Error
}

func (dao *scanDAO) UpdateScan(scan *models.Scan) error {
	return dao.db.Save(scan).Error
}

func (dao *scanDAO) GetScanByUUID(uuid string) (*models.Scan, error) {
	var scan models.Scan
	if err := dao.db.Where("uuid = ?", uuid).First(&scan).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

// SetCapturedRecords touches only the capture counter so it never races a
// status write into an older row image.
func (dao *scanDAO) SetCapturedRecords(uuid string, n int) error {
	result := dao.db.Model(&models.Scan{}).Where("uuid = ?", uuid).UpdateColumn("captured_records", n)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (dao *scanDAO) ListHistory(q HistoryQuery) ([]models.Scan, int64, error) {
	q = q.normalized()

	tx := dao.db.Model(&models.Scan{})
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Target != "" {
		tx = tx.Where("target = ?", q.Target)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var scans []models.Scan
	if err := tx.Order("created_at desc").
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&scans).Error; err != nil {
		return nil, 0, err
	}
	return scans, total, nil
}
