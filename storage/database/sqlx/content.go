package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/gallery"
	"github.com/gibigubae/registry/core/schedule"
)

var scheduleColumns = []string{"id", "items", "created_at", "updated_at"}

type dbSchedule struct {
	ID        int            `db:"id"`
	Items     schedule.Items `db:"items"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (s dbSchedule) toSchedule() schedule.Schedule {
	items := s.Items
	if items == nil {
		items = schedule.Items{}
	}
	return schedule.Schedule{ID: s.ID, Items: items, CreatedAt: s.CreatedAt.UTC(), UpdatedAt: s.UpdatedAt.UTC()}
}

type scheduleRepository struct {
	baseRepository
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(exec core.DBExecutor) *scheduleRepository {
	return &scheduleRepository{baseRepository{exec: exec}}
}

func (repo scheduleRepository) GetCurrent(ctx context.Context, exec ...core.DBExecutor) (schedule.Schedule, error) {
	stmt := psql.Select(scheduleColumns...).From("schedules").OrderBy("created_at DESC", "id DESC").Limit(1)
	var row dbSchedule
	if err := get(ctx, repo.getExec(exec), &row, stmt); err != nil {
		return schedule.Schedule{}, trapNoRowsErr(err, schedule.ErrNotFound, "getting schedule")
	}
	return row.toSchedule(), nil
}

func (repo scheduleRepository) SaveSchedule(ctx context.Context, sch schedule.Schedule, exec ...core.DBExecutor) (schedule.Schedule, error) {
	db := repo.getExec(exec)
	var row dbSchedule
	if sch.ID != 0 {
		stmt := psql.Update("schedules").
			Set("items", sch.Items).
			Set("updated_at", sch.UpdatedAt.UTC()).
			Where(sq.Eq{"id": sch.ID}).
			Suffix("RETURNING " + joinColumns(scheduleColumns))
		err := get(ctx, db, &row, stmt)
		if err == nil {
			return row.toSchedule(), nil
		}
		// purged in the meantime: start a new container
		if err = trapNoRowsErr(err, schedule.ErrNotFound, "updating schedule"); err != schedule.ErrNotFound {
			return schedule.Schedule{}, err
		}
		sch.CreatedAt = sch.UpdatedAt
	}

	stmt := psql.Insert("schedules").
		Columns("items", "created_at", "updated_at").
		Values(sch.Items, sch.CreatedAt.UTC(), sch.UpdatedAt.UTC()).
		Suffix("RETURNING " + joinColumns(scheduleColumns))
	if err := get(ctx, db, &row, stmt); err != nil {
		return schedule.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	return row.toSchedule(), nil
}

func (repo scheduleRepository) DeleteCreatedBefore(ctx context.Context, t time.Time, exec ...core.DBExecutor) (int64, error) {
	n, err := execAffected(ctx, repo.getExec(exec), psql.Delete("schedules").Where(sq.Lt{"created_at": t.UTC()}))
	return n, errors.Wrap(err, "deleting stale schedules")
}

var galleryColumns = []string{"id", "title", "description", "category", "image_url", "uploaded_by", "created_at"}

type dbGalleryItem struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Category    null.String `db:"category"`
	ImageURL    string      `db:"image_url"`
	UploadedBy  null.String `db:"uploaded_by"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (g dbGalleryItem) toItem() gallery.Item {
	return gallery.Item{
		ID:          g.ID,
		Title:       g.Title,
		Description: g.Description.String,
		Category:    g.Category.String,
		ImageURL:    g.ImageURL,
		UploadedBy:  g.UploadedBy.String,
		CreatedAt:   g.CreatedAt.UTC(),
	}
}

type galleryRepository struct {
	baseRepository
}

var _ gallery.Repository = (*galleryRepository)(nil) // interface compliance check

func NewGalleryRepository(exec core.DBExecutor) *galleryRepository {
	return &galleryRepository{baseRepository{exec: exec}}
}

func (repo galleryRepository) CreateItem(ctx context.Context, item gallery.Item, exec ...core.DBExecutor) (gallery.Item, error) {
	stmt := psql.Insert("gallery").
		Columns(galleryColumns...).
		Values(item.ID, item.Title, nullString(item.Description), nullString(item.Category), item.ImageURL,
			nullString(item.UploadedBy), item.CreatedAt.UTC()).
		Suffix("RETURNING " + joinColumns(galleryColumns))

	var row dbGalleryItem
	if err := get(ctx, repo.getExec(exec), &row, stmt); err != nil {
		return gallery.Item{}, errors.Wrap(err, "inserting gallery item")
	}
	return row.toItem(), nil
}

func (repo galleryRepository) QueryItems(ctx context.Context, category string, exec ...core.DBExecutor) ([]gallery.Item, error) {
	stmt := psql.Select(galleryColumns...).From("gallery").OrderBy("created_at DESC")
	if category != "" {
		stmt = stmt.Where(sq.Eq{"category": category})
	}

	var rows []dbGalleryItem
	if err := selectAll(ctx, repo.getExec(exec), &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "querying gallery")
	}
	items := make([]gallery.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toItem())
	}
	return items, nil
}

func (repo galleryRepository) DeleteItem(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), psql.Delete("gallery").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting gallery item")
	}
	if n == 0 {
		return gallery.ErrNotFound
	}
	return nil
}
