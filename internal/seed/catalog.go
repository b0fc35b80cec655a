// Package seed loads catalog definitions from YAML into the database.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"lootbox-hub/internal/lottery"
	"lootbox-hub/internal/model"
	"lootbox-hub/internal/repository"
)

var ErrInvalidCatalogFile = errors.New("invalid catalog file")

// CatalogFile is the on-disk layout. Boxes reference items by key so one
// file can define both.
type CatalogFile struct {
	Items []ItemSpec `yaml:"items"`
	Boxes []BoxSpec  `yaml:"boxes"`
}

type ItemSpec struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image_url"`
	Category    string `yaml:"category"`
	Rarity      string `yaml:"rarity"`
	Value       string `yaml:"value"`
}

type BoxSpec struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	ImageURL    string      `yaml:"image_url"`
	Category    string      `yaml:"category"`
	Price       string      `yaml:"price"`
	MinLevel    int         `yaml:"min_level"`
	Items       []EntrySpec `yaml:"items"`
}

type EntrySpec struct {
	Item   string `yaml:"item"`
	Weight int64  `yaml:"weight"`
}

type Result struct {
	Items map[string]uuid.UUID
	Boxes []uuid.UUID
}

// ParseCatalog decodes and validates a catalog file. Unknown fields are
// rejected so typos in weights or prices do not silently default to zero.
func ParseCatalog(r io.Reader) (*CatalogFile, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file CatalogFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogFile, err)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *CatalogFile) validate() error {
	if len(f.Items) == 0 && len(f.Boxes) == 0 {
		return fmt.Errorf("%w: no items or boxes", ErrInvalidCatalogFile)
	}

	keys := make(map[string]struct{}, len(f.Items))
	for i, item := range f.Items {
		key := strings.TrimSpace(item.Key)
		if key == "" || strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: item %d needs key and name", ErrInvalidCatalogFile, i)
		}
		if _, dup := keys[key]; dup {
			return fmt.Errorf("%w: duplicate item key %q", ErrInvalidCatalogFile, key)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(item.Value))
		if err != nil || value.IsNegative() {
			return fmt.Errorf("%w: item %q has invalid value %q", ErrInvalidCatalogFile, key, item.Value)
		}
		keys[key] = struct{}{}
	}

	for i, box := range f.Boxes {
		if strings.TrimSpace(box.Name) == "" {
			return fmt.Errorf("%w: box %d needs a name", ErrInvalidCatalogFile, i)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(box.Price))
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("%w: box %q has invalid price %q", ErrInvalidCatalogFile, box.Name, box.Price)
		}
		if box.MinLevel < 0 {
			return fmt.Errorf("%w: box %q has negative min_level", ErrInvalidCatalogFile, box.Name)
		}
		if len(box.Items) == 0 {
			return fmt.Errorf("%w: box %q has no items", ErrInvalidCatalogFile, box.Name)
		}
		for _, entry := range box.Items {
			if _, ok := keys[strings.TrimSpace(entry.Item)]; !ok {
				return fmt.Errorf("%w: box %q references unknown item %q", ErrInvalidCatalogFile, box.Name, entry.Item)
			}
			if entry.Weight <= 0 {
				return fmt.Errorf("%w: box %q has non-positive weight for %q", ErrInvalidCatalogFile, box.Name, entry.Item)
			}
		}
	}
	return nil
}

// ApplyCatalog inserts every item and then every box in file order inside one
// transaction, so a failure leaves no partial catalog behind.
func ApplyCatalog(ctx context.Context, repo repository.CatalogRepository, file *CatalogFile) (*Result, error) {
	if repo == nil || file == nil {
		return nil, errors.New("catalog repository and file are required")
	}

	var result *Result
	err := repo.WithinTx(ctx, func(tx repository.CatalogRepository) error {
		var err error
		result, err = applyCatalog(ctx, tx, file)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func applyCatalog(ctx context.Context, repo repository.CatalogRepository, file *CatalogFile) (*Result, error) {
	result := &Result{Items: make(map[string]uuid.UUID, len(file.Items))}
	for _, def := range file.Items {
		item := &model.Item{
			Name:        strings.TrimSpace(def.Name),
			Description: optional(def.Description),
			ImageURL:    optional(def.ImageURL),
			Category:    strings.TrimSpace(def.Category),
			Rarity:      strings.TrimSpace(def.Rarity),
			Value:       decimal.RequireFromString(strings.TrimSpace(def.Value)).Round(2),
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return nil, fmt.Errorf("create item %q: %w", def.Key, err)
		}
		result.Items[strings.TrimSpace(def.Key)] = item.ID
	}

	for _, boxDef := range file.Boxes {
		entries := make([]lottery.Entry, 0, len(boxDef.Items))
		for _, entry := range boxDef.Items {
			entries = append(entries, lottery.Entry{
				ItemID: result.Items[strings.TrimSpace(entry.Item)],
				Weight: entry.Weight,
			})
		}

		box := &model.Lootbox{
			Name:        strings.TrimSpace(boxDef.Name),
			Description: optional(boxDef.Description),
			ImageURL:    optional(boxDef.ImageURL),
			Category:    strings.TrimSpace(boxDef.Category),
			Price:       decimal.RequireFromString(strings.TrimSpace(boxDef.Price)).Round(2),
			MinLevel:    boxDef.MinLevel,
			Entries:     entries,
		}
		if err := repo.CreateBox(ctx, box); err != nil {
			return nil, fmt.Errorf("create box %q: %w", boxDef.Name, err)
		}
		result.Boxes = append(result.Boxes, box.ID)
	}
	return result, nil
}

func optional(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
