package queue

import (
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/idna"

	"github.com/raysh454/scanhub/internal/model"
)

// EnqueueRequest is a scan submission.
type EnqueueRequest struct {
	Type     model.JobType  `json:"type" validate:"required,oneof=sast dast"`
	Target   string         `json:"target,omitempty" validate:"omitempty,max=2048"`
	ScanType model.ScanMode `json:"scanType,omitempty" validate:"omitempty,oneof=simple full"`
	OwnerID  string         `json:"ownerId,omitempty" validate:"required,max=256"`

	// Delay schedules the job instead of queueing it immediately.
	Delay time.Duration `json:"delay,omitempty" validate:"gte=0,lte=168h"`
}

// RequestValidator checks EnqueueRequests. It is safe for concurrent use.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate returns a normalised copy of req, or a *model.ValidationError.
func (rv *RequestValidator) Validate(req EnqueueRequest) (EnqueueRequest, error) {
	req.Target = strings.TrimSpace(req.Target)
	req.OwnerID = strings.TrimSpace(req.OwnerID)

	if err := rv.v.Struct(req); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return req, &model.ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return req, fmt.Errorf("%w: %v", model.ErrInvalidSpec, err)
	}

	switch req.Type {
	case model.JobTypeDAST:
		if req.Target == "" {
			return req, &model.ValidationError{Field: "target", Message: "dast scans require a target"}
		}
		target, err := normalizeURL(req.Target)
		if err != nil {
			return req, &model.ValidationError{Field: "target", Message: err.Error()}
		}
		req.Target = target
		if req.ScanType == "" {
			req.ScanType = model.ScanModeSimple
		}
	case model.JobTypeSAST:
		// Scan depth only applies to dynamic scans.
		req.ScanType = ""
	}
	return req, nil
}

// normalizeURL requires an absolute http(s) URL and rewrites its host to
// the ASCII (punycode) form.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("target is not a valid URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("target must be an http or https URL")
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("target must include a host")
	}
	if u.User != nil {
		return "", fmt.Errorf("target must not embed credentials")
	}

	if ip := net.ParseIP(host); ip == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("target host %q is invalid: %v", host, err)
		}
		host = ascii
	} else if ip.To4() == nil {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}

	u.Scheme = scheme
	u.Host = host
	return u.String(), nil
}
