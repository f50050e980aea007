package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONField wraps a Go value stored in a single JSON column.
type JSONField[T any] struct {
	Data T
}

func MakeJSONField[T any](data T) *JSONField[T] {
	return &JSONField[T]{Data: data}
}

func (f JSONField[T]) Value() (driver.Value, error) {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (f *JSONField[T]) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, &f.Data)
	case string:
		return json.Unmarshal([]byte(v), &f.Data)
	default:
		return fmt.Errorf("unsupported source type %T for JSON field", value)
	}
}

func (JSONField[T]) GormDataType() string {
	return "json"
}

func (JSONField[T]) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}
