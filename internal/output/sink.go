// internal/output/sink.go
package output

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fetchlab/cataloger/internal/config"
	"github.com/fetchlab/cataloger/internal/utils"
	"github.com/fetchlab/cataloger/pkg/types"
)

// Sink is the append-only persistence interface. Sinks never update or
// delete; deduplication happens upstream, and database sinks additionally
// ignore conflicting identity keys so a rerun against an existing store
// stays idempotent.
type Sink interface {
	Append(records []*types.ProductRecord) error
	Close() error
}

// NewSink builds the sink for the configured output format.
func NewSink(cfg *config.OutputConfig, log utils.Logger) (Sink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("output configuration is required")
	}

	switch cfg.Format {
	case "jsonl":
		return NewJSONLWriter(cfg.Path)
	case "csv":
		return NewCSVWriter(cfg.Path)
	case "sqlite":
		return NewSQLiteWriter(cfg.Path, cfg.Table)
	case "postgres":
		return NewPostgresWriter(cfg.DSN, cfg.Table)
	case "mysql":
		return NewMySQLWriter(cfg.DSN, cfg.Table)
	case "mongodb":
		return NewMongoWriter(cfg.DSN, cfg.Database, cfg.Table, log)
	case "excel":
		return NewExcelWriter(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", cfg.Format)
	}
}

// recordColumns is the column order shared by the tabular sinks. The
// identity key comes first so database sinks can hang their uniqueness
// constraint on it.
var recordColumns = []string{
	"identity_key",
	"product_id",
	"title",
	"brand",
	"price",
	"original_price",
	"currency",
	"url",
	"image",
	"images",
	"colors",
	"sizes",
	"in_stock",
	"description",
	"features",
	"attributes",
	"categories",
	"gender",
	"materials",
	"color_name",
	"channel",
	"scraped_at",
}

// recordArgs flattens a record into one value per column. Slices and maps
// are stored as JSON text; nil prices stay NULL.
func recordArgs(rec *types.ProductRecord) []interface{} {
	return []interface{}{
		rec.IdentityKey(),
		rec.ProductID,
		rec.Title,
		rec.Brand,
		floatOrNil(rec.Price),
		floatOrNil(rec.OriginalPrice),
		rec.Currency,
		rec.URL,
		rec.Image,
		jsonText(rec.Images),
		jsonText(rec.Colors),
		jsonText(rec.Sizes),
		rec.InStock,
		rec.Description,
		jsonText(rec.Features),
		jsonText(rec.Attributes),
		jsonText(rec.Categories),
		rec.Gender,
		jsonText(rec.Materials),
		rec.ColorName,
		rec.Channel,
		rec.ScrapedAt.UTC().Format(time.RFC3339),
	}
}

// recordStrings renders the same row as display text for csv and excel.
func recordStrings(rec *types.ProductRecord) []string {
	args := recordArgs(rec)
	row := make([]string, len(args))
	for i, v := range args {
		switch t := v.(type) {
		case nil:
			row[i] = ""
		case string:
			row[i] = t
		case bool:
			row[i] = strconv.FormatBool(t)
		case float64:
			row[i] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			row[i] = fmt.Sprintf("%v", t)
		}
	}
	return row
}

func floatOrNil(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func jsonText(v interface{}) string {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return ""
		}
	case map[string]string:
		if len(t) == 0 {
			return ""
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
