// internal/model/target.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringArray type for PostgreSQL JSONB string arrays
type StringArray []string

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, a)
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Target represents a motorized shade (or other moving load) addressed
// through the controller. Targets are registered lazily: the first time
// the service retrieves a target's meta information it is upserted here.
type Target struct {
	TargetID  string      `json:"target_id" db:"target_id"`
	Name      string      `json:"name" db:"name"`
	Type      string      `json:"type" db:"type"`
	GroupIDs  StringArray `json:"group_ids" db:"group_ids"`
	Position  *int        `json:"position" db:"position"`
	FirstSeen time.Time   `json:"first_seen" db:"first_seen"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Group represents a named group of targets on the controller.
type Group struct {
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
}
