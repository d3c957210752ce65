package gallery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/media"
)

// MaxImageDim bounds both sides of a stored gallery image.
const MaxImageDim = 1600

var (
	ErrNotFound  = core.NewNotFoundError("gallery item not found")
	errStaffOnly = core.NewForbiddenError("only admins can manage the gallery")
)

type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

type NewItem struct {
	Title       string `json:"title" validate:"required,notblank,max=255"`
	Description string `json:"description" validate:"max=2000"`
	Category    string `json:"category" validate:"max=100"`
	ImageURL    string `json:"image_url" validate:"required,notblank"`
}

type (
	Repository interface {
		CreateItem(ctx context.Context, item Item, exec ...core.DBExecutor) (Item, error)
		// QueryItems lists items newest first; an empty category selects all of them.
		QueryItems(ctx context.Context, category string, exec ...core.DBExecutor) ([]Item, error)
		DeleteItem(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo     Repository
		recorder activity.Recorder
		conf     *core.Config
	}
)

func NewService(repo Repository, recorder activity.Recorder, conf *core.Config) *Service {
	return &Service{repo: repo, recorder: recorder, conf: conf}
}

// Upload stores a new item. Inline images are downscaled and re-encoded before storage.
func (svc *Service) Upload(ctx context.Context, actor core.Actor, ni NewItem) (Item, error) {
	if !actor.IsStaff() {
		return Item{}, errStaffOnly
	}
	img, err := media.NormalizeDataURL(ni.ImageURL, MaxImageDim, svc.conf.GalleryMaxBytes)
	if err != nil {
		return Item{}, err
	}

	item, err := svc.repo.CreateItem(ctx, Item{
		ID:          uuid.New().String(),
		Title:       core.Sanitize(ni.Title),
		Description: core.Sanitize(ni.Description),
		Category:    core.CleanString(ni.Category, true),
		ImageURL:    img,
		UploadedBy:  actor.Username,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Item{}, errors.Wrap(err, "creating gallery item")
	}
	svc.recorder.Record(ctx, activity.TypeGallery, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"action": "upload", "id": item.ID, "title": item.Title})
	return item, nil
}

func (svc *Service) List(ctx context.Context, category string) ([]Item, error) {
	items, err := svc.repo.QueryItems(ctx, core.CleanString(category, true))
	if err != nil {
		return nil, errors.Wrap(err, "querying gallery")
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if !actor.IsStaff() {
		return errStaffOnly
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	if err := svc.repo.DeleteItem(ctx, id); err != nil {
		return err
	}
	svc.recorder.Record(ctx, activity.TypeGallery, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"action": "delete", "id": id})
	return nil
}
