package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// AffixedEnvFeeder reads environment variables named PREFIX_<TAG>_SUFFIX into
// struct fields tagged `env:"TAG"`, and PREFIX_<KEY>_SUFFIX into props maps.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates a new AffixedEnvFeeder with the specified prefix and suffix
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed populates the env-tagged fields of the struct structure points to.
// Nested structs are walked with the same affixes.
func (f AffixedEnvFeeder) Feed(structure interface{}) error {
	rv := reflect.ValueOf(structure)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	return f.fillStruct(rv.Elem())
}

func (f AffixedEnvFeeder) fillStruct(rv reflect.Value) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := f.fillStruct(field); err != nil {
				return err
			}
			continue
		}

		tag, ok := fieldType.Tag.Lookup("env")
		if !ok {
			continue
		}
		value, ok := os.LookupEnv(f.name(tag))
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

// FeedProps overrides entries of props from the environment. An override of an
// existing entry is converted to that entry's type; absent keys are never added.
func (f AffixedEnvFeeder) FeedProps(props map[string]any) error {
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	for key, current := range props {
		value, ok := os.LookupEnv(f.name(key))
		if !ok {
			continue
		}
		if current == nil {
			props[key] = value
			continue
		}
		converted, err := cast.FromType(value, reflect.TypeOf(current))
		if err != nil {
			return fmt.Errorf("prop %q: cannot convert value to type %T: %w", key, current, err)
		}
		props[key] = converted
	}
	return nil
}

// name builds PREFIX_KEY_SUFFIX, upper-cased, with dashes and dots as underscores.
func (f AffixedEnvFeeder) name(key string) string {
	parts := make([]string, 0, 3)
	if f.Prefix != "" {
		parts = append(parts, f.Prefix)
	}
	parts = append(parts, key)
	if f.Suffix != "" {
		parts = append(parts, f.Suffix)
	}
	return EnvName(parts...)
}

// EnvName joins parts into an environment variable name.
func EnvName(parts ...string) string {
	name := strings.ToUpper(strings.Join(parts, "_"))
	return strings.NewReplacer("-", "_", ".", "_").Replace(name)
}

// setFieldValue converts and sets a field value
func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}
	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(convertedValue))
	return nil
}
