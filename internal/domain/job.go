package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
	SourceTypeHTTPURL     = "http_url"
)

var validate = newValidator()

// newValidator registers the tokens shared with the query-string parsers so a
// variant accepts exactly what the raw image route accepts.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("fitmode", func(fl validator.FieldLevel) bool {
		_, err := ParseFitMode(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("imageformat", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
		case "jpeg", "jpg", "png", "webp":
			return true
		default:
			return false
		}
	})
	return v
}

type CreateJobRequest struct {
	SourceType string    `json:"source_type" validate:"required"`
	UserID     string    `json:"user_id,omitempty" validate:"max=128"`
	WebhookURL string    `json:"webhook_url,omitempty" validate:"omitempty,url"`
	ObjectKey  string    `json:"object_key,omitempty"`
	SourceURL  string    `json:"source_url,omitempty" validate:"omitempty,url"`
	Variants   []Variant `json:"variants" validate:"required,min=1,max=32,dive"`
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Variants   []Variant
	// ObjectKey is a filesystem path, a bucket key or a URL depending on SourceType.
	ObjectKey string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}

	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return fmt.Errorf("%s failed %q validation", first.Namespace(), first.Tag())
		}
		return err
	}

	switch sourceType {
	case SourceTypeLocalFile:
		if strings.TrimSpace(r.ObjectKey) == "" {
			return errors.New("object_key is required for source_type=local_file")
		}
	case SourceTypeHTTPURL:
		if strings.TrimSpace(r.SourceURL) == "" {
			return errors.New("source_url is required for source_type=http_url")
		}
		u, err := url.Parse(r.SourceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("source_url must be an http(s) URL: %s", r.SourceURL)
		}
	case SourceTypeS3Presigned:
	default:
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}

	seen := make(map[string]struct{}, len(r.Variants))
	for i, v := range r.Variants {
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("variants[%d].id %q is duplicated", i, v.ID)
		}
		seen[v.ID] = struct{}{}

		if strings.TrimSpace(v.Background) != "" {
			if _, err := ParseRGB(v.Background); err != nil {
				return fmt.Errorf("variants[%d].background: %w", i, err)
			}
		}
	}
	return nil
}
