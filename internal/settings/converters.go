package settings

import (
	"fmt"
	"strconv"
	"time"
)

// StringConverter is the identity converter.
type StringConverter struct{}

func (StringConverter) Parse(raw string) (any, error) { return raw, nil }
func (StringConverter) Format(v any) string            { return fmt.Sprint(v) }

type IntConverter struct{}

func (IntConverter) Parse(raw string) (any, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return n, nil
}
func (IntConverter) Format(v any) string { return fmt.Sprint(v) }

type BoolConverter struct{}

func (BoolConverter) Parse(raw string) (any, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return b, nil
}
func (BoolConverter) Format(v any) string { return fmt.Sprint(v) }

type DurationConverter struct{}

func (DurationConverter) Parse(raw string) (any, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, err
	}
	return d, nil
}
func (DurationConverter) Format(v any) string { return fmt.Sprint(v) }

type Float64Converter struct{}

func (Float64Converter) Parse(raw string) (any, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return f, nil
}
func (Float64Converter) Format(v any) string { return fmt.Sprint(v) }
