package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MaxMessageLength bounds inbound message text.
const MaxMessageLength = 10000

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateRequest checks a decoded request body against its validate tags
// and reports the first offending field by its JSON name.
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Errorf("%s exceeds maximum length", fe.Field())
	}
	return fmt.Errorf("%s is invalid", fe.Field())
}

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) > MaxMessageLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation id from the path.
func ValidateConversationID(id string) error {
	if id == "" {
		return errors.New("conversation id cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("conversation id exceeds maximum length")
	}
	return nil
}
