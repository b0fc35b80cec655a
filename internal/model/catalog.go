package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lootbox-hub/internal/lottery"
)

type LootboxStatus string

const (
	LootboxStatusActive  LootboxStatus = "active"
	LootboxStatusRetired LootboxStatus = "retired"
)

// Lootbox is a catalog box. Entries keep the declared (position-ordered)
// weight list; weights are validated by lottery.NewCatalog on load.
type Lootbox struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  *string         `db:"description" json:"description,omitempty"`
	ImageURL     *string         `db:"image_url" json:"image_url,omitempty"`
	Category     string          `db:"category" json:"category"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Status       LootboxStatus   `db:"status" json:"status"`
	MinLevel     int             `db:"min_level" json:"min_level"`
	TimesOpened  int64           `db:"times_opened" json:"times_opened"`
	LastOpenedAt *time.Time      `db:"last_opened_at" json:"last_opened_at,omitempty"`
	Entries      []lottery.Entry `db:"-" json:"-"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type Item struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description *string         `db:"description" json:"description,omitempty"`
	ImageURL    *string         `db:"image_url" json:"image_url,omitempty"`
	Category    string          `db:"category" json:"category"`
	Rarity      string          `db:"rarity" json:"rarity"`
	Value       decimal.Decimal `db:"value" json:"value"`
	TimesWon    int64           `db:"times_won" json:"times_won"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
