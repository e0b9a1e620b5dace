package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/types"
	"github.com/tidwall/buntdb"
)

const (
	messageKeyPrefix = "message:"
	taskKeyPrefix    = "task:"
	projectKeyPrefix = "project:"
)

type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	db, err := buntdb.Open(cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	return &BuntDBPersist{db: db}, nil
}

// nextId increments and returns the per-kind id counter. Must be called
// inside an Update transaction so that id assignment is atomic with the
// write that uses it.
func nextId(tx *buntdb.Tx, kind string) (int64, error) {
	key := "counter:" + kind
	var id int64
	if v, err := tx.Get(key); err == nil {
		id, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
	} else if err != buntdb.ErrNotFound {
		return 0, err
	}
	id++
	if _, _, err := tx.Set(key, strconv.FormatInt(id, 10), nil); err != nil {
		return 0, err
	}
	return id, nil
}

func recordKey(prefix string, id int64) string {
	return fmt.Sprintf("%s%020d", prefix, id)
}

func (p *BuntDBPersist) StoreMessage(msg *types.Message) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextId(tx, "message")
		if err != nil {
			return err
		}
		msg.Id = id
		msg.SentAt = time.Now().UTC()
		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(recordKey(messageKeyPrefix, id), string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) MessageHistory(limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	messages := make([]types.Message, 0, limit)
	err := p.db.View(func(tx *buntdb.Tx) error {
		// the zero-padded keys sort by id, newest last, so a descending walk
		// yields the newest rows first
		return tx.DescendKeys(messageKeyPrefix+"*", func(key, val string) bool {
			var msg types.Message
			if err := json.Unmarshal([]byte(val), &msg); err == nil {
				messages = append(messages, msg)
			}
			return len(messages) < limit
		})
	})
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

func (p *BuntDBPersist) UrgentTasks(now, horizon time.Time) ([]types.Task, error) {
	tasks := make([]types.Task, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		var iterErr error
		err := tx.AscendKeys(taskKeyPrefix+"*", func(key, val string) bool {
			var task types.Task
			if err := json.Unmarshal([]byte(val), &task); err != nil {
				iterErr = err
				return false
			}
			if !isUrgent(&task, now, horizon) {
				return true
			}
			if task.ProjectId != 0 {
				if v, err := tx.Get(recordKey(projectKeyPrefix, task.ProjectId)); err == nil {
					var project types.Project
					if err := json.Unmarshal([]byte(v), &project); err == nil {
						task.Project = &project
					}
				}
			}
			tasks = append(tasks, task)
			return true
		})
		if err != nil {
			return err
		}
		return iterErr
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (p *BuntDBPersist) StoreProject(project *types.Project) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if project.Id == 0 {
			id, err := nextId(tx, "project")
			if err != nil {
				return err
			}
			project.Id = id
		}
		raw, err := json.Marshal(project)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(recordKey(projectKeyPrefix, project.Id), string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) Projects() ([]types.Project, error) {
	projects := make([]types.Project, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(projectKeyPrefix+"*", func(key, val string) bool {
			var project types.Project
			if err := json.Unmarshal([]byte(val), &project); err == nil {
				projects = append(projects, project)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (p *BuntDBPersist) StoreTask(task *types.Task) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if task.Id == 0 {
			id, err := nextId(tx, "task")
			if err != nil {
				return err
			}
			task.Id = id
		}
		// the project is stored by reference only
		stored := *task
		stored.Project = nil
		raw, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(recordKey(taskKeyPrefix, task.Id), string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
