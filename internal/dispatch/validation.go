package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"store-core/internal/apperr"
)

// Validator inspects one request type and returns every rule it violates as
// a human readable message. An empty result means the request is valid.
type Validator[Req Request] interface {
	Validate(ctx context.Context, req Req) []string
}

type ValidatorFunc[Req Request] func(ctx context.Context, req Req) []string

func (f ValidatorFunc[Req]) Validate(ctx context.Context, req Req) []string {
	return f(ctx, req)
}

type validatorFn func(ctx context.Context, req Request) []string

func adapt[Req Request](name string, v Validator[Req]) validatorFn {
	return func(ctx context.Context, req Request) []string {
		typed, ok := req.(Req)
		if !ok {
			return []string{fmt.Sprintf("request %q has unexpected type %T", name, req)}
		}
		return v.Validate(ctx, typed)
	}
}

type validationBehavior struct {
	validators []validatorFn
}

func (b *validationBehavior) Handle(ctx context.Context, req Request, next Next) (any, error) {
	results := make([][]string, len(b.validators))

	var g errgroup.Group
	for i, v := range b.validators {
		g.Go(func() error {
			results[i] = v(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, apperr.Canceled(err)
	}

	if messages := distinct(results); len(messages) > 0 {
		return nil, apperr.Validation(messages)
	}
	return next(ctx)
}

// distinct flattens results in validator order and drops repeated messages,
// keeping the first occurrence.
func distinct(results [][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, messages := range results {
		for _, m := range messages {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// StructValidator checks go-playground/validator struct tags on the request
// and maps each failure to a message from Messages, keyed "Field.tag".
// Failures without an entry fall back to a generic message.
type StructValidator[Req Request] struct {
	validate *validator.Validate
	Messages map[string]string
}

func NewStructValidator[Req Request](validate *validator.Validate, messages map[string]string) *StructValidator[Req] {
	if validate == nil {
		validate = NewValidate()
	}
	return &StructValidator[Req]{validate: validate, Messages: messages}
}

func (s *StructValidator[Req]) Validate(ctx context.Context, req Req) []string {
	err := s.validate.StructCtx(ctx, req)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if m, ok := s.Messages[fe.Field()+"."+fe.Tag()]; ok {
			messages = append(messages, m)
			continue
		}
		messages = append(messages, fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag()))
	}
	return messages
}

// NewValidate returns a validator that reports json field names and knows
// the absurl tag (empty or an absolute URL).
func NewValidate() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	_ = validate.RegisterValidation("absurl", func(fl validator.FieldLevel) bool {
		value := fl.Field()
		if value.Kind() == reflect.Pointer {
			if value.IsNil() {
				return true
			}
			value = value.Elem()
		}
		raw := strings.TrimSpace(value.String())
		if raw == "" {
			return true
		}
		return isAbsoluteURL(raw)
	})

	return validate
}

func isAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.IsAbs() && parsed.Host != ""
}
