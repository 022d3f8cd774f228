package rest

import (
	"errors"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var missionKeyPattern = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the custom binding tags used by the request types:
//
//	mission_key  lower-case snake_case identifier, at most 64 characters
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("rest: gin validator is not go-playground/validator")
			return
		}
		registerErr = v.RegisterValidation("mission_key", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return len(s) <= 64 && missionKeyPattern.MatchString(s)
		})
	})
	return registerErr
}
