package inmemdb

import (
	"context"
	"time"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/gallery"
	"github.com/gibigubae/registry/core/schedule"
)

type scheduleRepository struct {
	db *DB
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *DB) *scheduleRepository {
	return &scheduleRepository{db: db}
}

func (repo *scheduleRepository) GetCurrent(_ context.Context, exec ...core.DBExecutor) (schedule.Schedule, error) {
	defer repo.db.rlock(exec)()

	var (
		current schedule.Schedule
		found   bool
	)
	for _, sch := range repo.db.t.schedules {
		if !found || sch.CreatedAt.After(current.CreatedAt) ||
			(sch.CreatedAt.Equal(current.CreatedAt) && sch.ID > current.ID) {
			current, found = sch, true
		}
	}
	if !found {
		return schedule.Schedule{}, schedule.ErrNotFound
	}
	current.Items = append(schedule.Items{}, current.Items...)
	return current, nil
}

func (repo *scheduleRepository) SaveSchedule(_ context.Context, sch schedule.Schedule, exec ...core.DBExecutor) (schedule.Schedule, error) {
	defer repo.db.lock(exec)()

	if sch.Items == nil {
		sch.Items = schedule.Items{}
	}
	if orig, ok := repo.db.t.schedules[sch.ID]; ok && sch.ID != 0 {
		sch.CreatedAt = orig.CreatedAt
		repo.db.t.schedules[sch.ID] = sch
		return sch, nil
	}
	if sch.ID != 0 {
		sch.CreatedAt = sch.UpdatedAt
	}
	repo.db.t.scheduleSeq++
	sch.ID = repo.db.t.scheduleSeq
	repo.db.t.schedules[sch.ID] = sch
	return sch, nil
}

func (repo *scheduleRepository) DeleteCreatedBefore(_ context.Context, t time.Time, exec ...core.DBExecutor) (int64, error) {
	defer repo.db.lock(exec)()

	var n int64
	for id, sch := range repo.db.t.schedules {
		if sch.CreatedAt.Before(t) {
			delete(repo.db.t.schedules, id)
			n++
		}
	}
	return n, nil
}

type galleryRepository struct {
	db *DB
}

var _ gallery.Repository = (*galleryRepository)(nil) // interface compliance check

func NewGalleryRepository(db *DB) *galleryRepository {
	return &galleryRepository{db: db}
}

func (repo *galleryRepository) CreateItem(_ context.Context, item gallery.Item, exec ...core.DBExecutor) (gallery.Item, error) {
	defer repo.db.lock(exec)()
	repo.db.t.gallery = append(repo.db.t.gallery, item)
	return item, nil
}

func (repo *galleryRepository) QueryItems(_ context.Context, category string, exec ...core.DBExecutor) ([]gallery.Item, error) {
	defer repo.db.rlock(exec)()

	items := make([]gallery.Item, 0)
	for i := len(repo.db.t.gallery) - 1; i >= 0; i-- {
		if it := repo.db.t.gallery[i]; category == "" || it.Category == category {
			items = append(items, it)
		}
	}
	return items, nil
}

func (repo *galleryRepository) DeleteItem(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	for i, it := range repo.db.t.gallery {
		if it.ID == id {
			repo.db.t.gallery = append(repo.db.t.gallery[:i:i], repo.db.t.gallery[i+1:]...)
			return nil
		}
	}
	return gallery.ErrNotFound
}
