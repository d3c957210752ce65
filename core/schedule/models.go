package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type Item struct {
	ID          string `json:"id"`
	Activity    string `json:"activity"`
	Day         string `json:"day"`
	TimeRange   string `json:"time_range"`
	Description string `json:"description"`
	AddedBy     string `json:"added_by"`
}

// Items is stored as a single JSON array.
type Items []Item

func (it Items) Value() (driver.Value, error) {
	if it == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(it)
}

func (it *Items) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*it = Items{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into Items", src)
	}
	items := Items{}
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "decoding schedule items")
	}
	*it = items
	return nil
}

// Schedule is the container row holding the current items.
type Schedule struct {
	ID        int       `json:"id"`
	Items     Items     `json:"items"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type NewItem struct {
	Activity    string `json:"activity" validate:"required,notblank,max=255"`
	Day         string `json:"day" validate:"required,notblank,max=50"`
	TimeRange   string `json:"time_range" validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type Replace struct {
	Items []NewItem `json:"items" validate:"dive"`
}
