package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercent || t == DiscountFixed
}

func (t *DiscountType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dt := DiscountType(s)
	if !dt.Valid() {
		return fmt.Errorf("unknown discount type %q", s)
	}
	*t = dt
	return nil
}

func (t DiscountType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown discount type %q", string(t))
	}
	return string(t), nil
}

func (t *DiscountType) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*t = DiscountType(v)
	case []byte:
		*t = DiscountType(v)
	default:
		return fmt.Errorf("cannot scan type %T into DiscountType", value)
	}
	if !t.Valid() {
		return fmt.Errorf("unknown discount type %q", string(*t))
	}
	return nil
}
