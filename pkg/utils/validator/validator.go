// Package validator wraps go-playground/validator with EN/ZH translations
// and the custom tags used by the request DTOs. Install it as gin's binding
// validator with BindGin.
package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
	zhtrans "github.com/go-playground/validator/v10/translations/zh"
)

// Supported languages.
const (
	LangEN = "en"
	LangZH = "zh"
)

// Validator validates structs and translates the failures. Constraints are
// read from the `binding` struct tag, the same tag gin uses.
type Validator struct {
	validate *validator.Validate
	uni      *ut.UniversalTranslator
	trans    map[string]ut.Translator
}

var (
	globalMu sync.RWMutex
	global   *Validator
	once     sync.Once
)

// Global returns the process-wide validator.
func Global() *Validator {
	once.Do(func() {
		globalMu.Lock()
		if global == nil {
			global = New()
		}
		globalMu.Unlock()
	})
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// SetGlobal replaces the process-wide validator.
func SetGlobal(v *Validator) {
	once.Do(func() {})
	globalMu.Lock()
	global = v
	globalMu.Unlock()
}

// New creates a validator with EN and ZH translators and the custom rules.
func New() *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		trans:    make(map[string]ut.Translator, 2),
	}
	v.validate.SetTagName("binding")

	// 字段名优先使用 json 标签
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	enLocale := en.New()
	v.uni = ut.New(enLocale, enLocale, zh.New())

	if t, ok := v.uni.GetTranslator(LangEN); ok {
		_ = entrans.RegisterDefaultTranslations(v.validate, t)
		v.trans[LangEN] = t
	}
	if t, ok := v.uni.GetTranslator(LangZH); ok {
		_ = zhtrans.RegisterDefaultTranslations(v.validate, t)
		v.trans[LangZH] = t
	}

	v.registerCustomRules()
	v.registerCustomTranslations()
	return v
}

// GetTranslator returns the translator for lang, or nil.
func (v *Validator) GetTranslator(lang string) ut.Translator {
	return v.trans[lang]
}

// Engine returns the underlying go-playground validator.
func (v *Validator) Engine() interface{} {
	return v.validate
}

// Validate validates obj and returns *ValidationErrors with English
// messages on failure.
func (v *Validator) Validate(obj interface{}) error {
	return v.ValidateWithLang(obj, LangEN)
}

// ValidateWithLang validates obj and translates failures into lang.
func (v *Validator) ValidateWithLang(obj interface{}, lang string) error {
	err := v.validate.Struct(obj)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	trans := v.GetTranslator(lang)
	if trans == nil {
		trans = v.GetTranslator(LangEN)
	}

	out := &ValidationErrors{Errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		msg := fe.Error()
		if trans != nil {
			msg = fe.Translate(trans)
		}
		out.Errors = append(out.Errors, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fe.Value(),
			Message: msg,
		})
	}
	return out
}

// ginValidator adapts Validator to gin's binding.StructValidator.
type ginValidator struct {
	v *Validator
}

func (g *ginValidator) ValidateStruct(obj interface{}) error {
	if obj == nil {
		return nil
	}
	value := reflect.ValueOf(obj)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}
	return g.v.Validate(obj)
}

func (g *ginValidator) Engine() interface{} {
	return g.v.Engine()
}

// BindGin installs v as gin's binding validator so ShouldBind* returns
// *ValidationErrors.
func BindGin(v *Validator) {
	binding.Validator = &ginValidator{v: v}
}
