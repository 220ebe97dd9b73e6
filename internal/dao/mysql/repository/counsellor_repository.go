package repository

import (
	"edulead_chat_server/internal/model"

	"gorm.io/gorm"
)

type counsellorRepository struct {
	db *gorm.DB
}

// NewCounsellorRepository creates the counsellor repository.
func NewCounsellorRepository(db *gorm.DB) CounsellorRepository {
	return &counsellorRepository{db: db}
}

func (r *counsellorRepository) FindByUuid(uuid string) (*model.Counsellor, error) {
	var counsellor model.Counsellor
	if err := r.db.Where("uuid = ?", uuid).First(&counsellor).Error; err != nil {
		return nil, wrapDBErrorf(err, "find counsellor uuid=%s", uuid)
	}
	return &counsellor, nil
}

func (r *counsellorRepository) FindByEmail(email string) (*model.Counsellor, error) {
	var counsellor model.Counsellor
	if err := r.db.Where("email = ?", email).First(&counsellor).Error; err != nil {
		return nil, wrapDBErrorf(err, "find counsellor email=%s", email)
	}
	return &counsellor, nil
}

func (r *counsellorRepository) FindByRole(role string) ([]model.Counsellor, error) {
	var counsellors []model.Counsellor
	if err := r.db.Where("role = ?", role).Find(&counsellors).Error; err != nil {
		return nil, wrapDBErrorf(err, "find counsellors role=%s", role)
	}
	return counsellors, nil
}

func (r *counsellorRepository) Create(counsellor *model.Counsellor) error {
	if err := r.db.Create(counsellor).Error; err != nil {
		return wrapDBError(err, "create counsellor")
	}
	return nil
}
