package grading

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-participation/internal/validate"
)

// Settings are the per-class weights and allowances. The tag names are the
// stable field names used by forms, JSON and the settings table.
type Settings struct {
	BaseScore           float64 `json:"base_score" db:"base_score" yaml:"base_score" validate:"finite,gte=0"`
	SpreadPoints        float64 `json:"spread_points" db:"spread_points" yaml:"spread_points" validate:"finite,gte=0"`
	InstanceWeight      float64 `json:"instance_weight" db:"instance_weight" yaml:"instance_weight" validate:"finite,gte=0"`
	TimeWeight          float64 `json:"time_weight" db:"time_weight" yaml:"time_weight" validate:"finite,gte=0"`
	SyncPenalty         float64 `json:"sync_penalty" db:"sync_penalty" yaml:"sync_penalty" validate:"finite,gte=0"`
	FreeSyncAbsences    float64 `json:"free_sync_absences" db:"free_sync_absences" yaml:"free_sync_absences" validate:"finite,gte=0"`
	AsyncPenalty        float64 `json:"async_penalty" db:"async_penalty" yaml:"async_penalty" validate:"finite,gte=0"`
	FreeAsyncMisses     float64 `json:"free_async_misses" db:"free_async_misses" yaml:"free_async_misses" validate:"finite,gte=0"`
	MaxInstancesPerWeek float64 `json:"max_instances_per_week" db:"max_instances_per_week" yaml:"max_instances_per_week" validate:"finite,gte=0"`
	FreeVideoOff        float64 `json:"free_video_off" db:"free_video_off" yaml:"free_video_off" validate:"finite,gte=0"`
	VideoOffPenalty     float64 `json:"video_off_penalty" db:"video_off_penalty" yaml:"video_off_penalty" validate:"finite,gte=0"`
}

// SettingsFields lists the stable field names in form order.
var SettingsFields = []string{
	"base_score", "spread_points", "instance_weight", "time_weight",
	"sync_penalty", "free_sync_absences", "async_penalty", "free_async_misses",
	"max_instances_per_week", "free_video_off", "video_off_penalty",
}

// DefaultSettings is what a new class starts with.
func DefaultSettings() Settings {
	return Settings{
		BaseScore:           85,
		SpreadPoints:        15,
		InstanceWeight:      1,
		TimeWeight:          0.5,
		SyncPenalty:         2,
		FreeSyncAbsences:    1,
		AsyncPenalty:        2,
		FreeAsyncMisses:     1,
		MaxInstancesPerWeek: 5,
		FreeVideoOff:        2,
		VideoOffPenalty:     1,
	}
}

// Field returns a pointer to the field with the given stable name.
func (s *Settings) Field(name string) (*float64, bool) {
	switch name {
	case "base_score":
		return &s.BaseScore, true
	case "spread_points":
		return &s.SpreadPoints, true
	case "instance_weight":
		return &s.InstanceWeight, true
	case "time_weight":
		return &s.TimeWeight, true
	case "sync_penalty":
		return &s.SyncPenalty, true
	case "free_sync_absences":
		return &s.FreeSyncAbsences, true
	case "async_penalty":
		return &s.AsyncPenalty, true
	case "free_async_misses":
		return &s.FreeAsyncMisses, true
	case "max_instances_per_week":
		return &s.MaxInstancesPerWeek, true
	case "free_video_off":
		return &s.FreeVideoOff, true
	case "video_off_penalty":
		return &s.VideoOffPenalty, true
	}
	return nil, false
}

func (s Settings) Validate() error {
	return validate.Struct(s)
}

// ParseFinite parses a decimal number, rejecting NaN and infinities.
func ParseFinite(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ApplyForm overwrites the fields present in form and leaves the others as
// they are. Non-numeric values are reported per field; on error s is unchanged.
func (s *Settings) ApplyForm(form url.Values) error {
	next := *s
	var flds []validate.FieldError
	for _, name := range SettingsFields {
		raw, ok := form[name]
		if !ok || len(raw) == 0 || strings.TrimSpace(raw[0]) == "" {
			continue
		}
		v, ok := ParseFinite(raw[0])
		if !ok {
			flds = append(flds, validate.FieldError{Field: name, Error: name + " must be a finite number"})
			continue
		}
		p, _ := next.Field(name)
		*p = v
	}
	if len(flds) > 0 {
		return validate.NewValidationError(errors.Wrap(validate.ErrInvalid, "settings form"), flds...)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}
