package grading

import (
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-participation/internal/validate"
)

var (
	syncStatusTag  = "sync_status"
	syncStatusText = "{0} must be one of Present, Absent, Video Off"

	asyncStatusTag  = "async_status"
	asyncStatusText = "{0} must be one of Completed, Missed"

	finiteTag  = "finite"
	finiteText = "{0} must be a finite number"
)

func init() {
	_ = validate.Validate.RegisterValidation(syncStatusTag, syncStatusValidation)
	validate.RegisterCustomTranslation(syncStatusTag, syncStatusText)

	_ = validate.Validate.RegisterValidation(asyncStatusTag, asyncStatusValidation)
	validate.RegisterCustomTranslation(asyncStatusTag, asyncStatusText)

	_ = validate.Validate.RegisterValidation(finiteTag, finiteValidation)
	validate.RegisterCustomTranslation(finiteTag, finiteText)
}

// ValidSyncStatus accepts the known statuses and "" (not recorded).
func ValidSyncStatus(s string) bool {
	switch s {
	case "", SyncPresent, SyncAbsent, SyncVideoOff:
		return true
	}
	return false
}

// ValidAsyncStatus accepts the known statuses and "" (not recorded).
func ValidAsyncStatus(s string) bool {
	switch s {
	case "", AsyncCompleted, AsyncMissed:
		return true
	}
	return false
}

func syncStatusValidation(fl validator.FieldLevel) bool {
	return ValidSyncStatus(fl.Field().String())
}

func asyncStatusValidation(fl validator.FieldLevel) bool {
	return ValidAsyncStatus(fl.Field().String())
}

func finiteValidation(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
