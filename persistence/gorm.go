package persistence

import (
	"sort"
	"time"

	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	db, err := gorm.Open(sqlite.Open(cfg.PersistenceConfig.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrator().AutoMigrate(&types.Project{}, &types.Task{}, &types.Message{}); err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func (p *GormPersist) StoreMessage(msg *types.Message) error {
	msg.Id = 0
	msg.SentAt = time.Now().UTC()
	return p.db.Create(msg).Error
}

func (p *GormPersist) MessageHistory(limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	messages := make([]types.Message, 0, limit)
	err := p.db.Order("sent_at DESC, id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].SentAt.Equal(messages[j].SentAt) {
			return messages[i].Id < messages[j].Id
		}
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	return messages, nil
}

func (p *GormPersist) UrgentTasks(now, horizon time.Time) ([]types.Task, error) {
	tasks := make([]types.Task, 0)
	err := p.db.Preload("Project").
		Where("status IN ?", types.ScannableStatuses()).
		Where("due_date IS NOT NULL").
		Where("due_date < ? OR (due_date >= ? AND due_date <= ?)", now, now, horizon).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (p *GormPersist) StoreProject(project *types.Project) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(project).Error
}

func (p *GormPersist) Projects() ([]types.Project, error) {
	projects := make([]types.Project, 0)
	err := p.db.Find(&projects).Error
	return projects, err
}

func (p *GormPersist) StoreTask(task *types.Task) error {
	return p.db.Omit("Project").Clauses(clause.OnConflict{UpdateAll: true}).Create(task).Error
}

func (p *GormPersist) Close() error {
	return nil
}
