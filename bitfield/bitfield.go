// Package bitfield provides functionality to pack and unpack struct fields
// into a single integer using struct tags. This is a simplified version
// based on golang.org/x/text/internal/gen/bitfield.
package bitfield

import (
	"fmt"
	"reflect"
	"strings"
)

// Config determines settings for packing and unpacking.
type Config struct {
	// NumBits caps the total number of tagged bits; Pack and Unpack return an
	// error when the fields need more. Zero disables the check. The packed
	// representation is always a uint64, whatever NumBits is.
	NumBits uint
}

type taggedField struct {
	index int
	bits  uint
}

func taggedFields(t reflect.Type) ([]taggedField, error) {
	fields := make([]taggedField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("bitfield")
		if tag == "" {
			continue
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
			// "name,bits": %s would swallow the comma, so scan only the part
			// from the last comma on.
			comma := strings.LastIndexByte(tag, ',')
			if comma < 0 {
				return nil, fmt.Errorf("bitfield: invalid tag %q on field %s", tag, t.Field(i).Name)
			}
			if _, err := fmt.Sscanf(tag[comma:], ",%d", &bits); err != nil {
				return nil, fmt.Errorf("bitfield: invalid tag %q on field %s", tag, t.Field(i).Name)
			}
		}
		if bits == 0 {
			continue
		}
		fields = append(fields, taggedField{index: i, bits: bits})
	}
	return fields, nil
}

// Pack packs annotated bit ranges of struct x into an integer.
// Only fields that have a "bitfield" tag are compacted.
func Pack(x interface{}, c *Config) (packed uint64, err error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack: expected struct, got %v", v.Kind())
	}

	fields, err := taggedFields(v.Type())
	if err != nil {
		return 0, err
	}

	var bitOffset uint
	for _, f := range fields {
		fieldValue := v.Field(f.index)
		var fieldBits uint64

		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldBits = fieldValue.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			val := fieldValue.Int()
			if val < 0 {
				return 0, fmt.Errorf("bitfield: Pack: negative value %d for field %s", val, v.Type().Field(f.index).Name)
			}
			fieldBits = uint64(val)
		default:
			return 0, fmt.Errorf("bitfield: Pack: unsupported field type %v for field %s", fieldValue.Kind(), v.Type().Field(f.index).Name)
		}

		maxValue := uint64((1 << f.bits) - 1)
		if fieldBits > maxValue {
			return 0, fmt.Errorf("bitfield: Pack: value %d exceeds %d bits for field %s", fieldBits, f.bits, v.Type().Field(f.index).Name)
		}

		packed |= fieldBits << bitOffset
		bitOffset += f.bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("bitfield: Pack: total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return packed, nil
}

// Unpack is the inverse of Pack: it reads the bit ranges named by the
// "bitfield" tags on dst's fields out of packed and stores them into dst.
// dst must be a pointer to a struct.
func Unpack(packed uint64, dst interface{}, c *Config) error {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack: dst must be a pointer to a struct, got %v", v.Kind())
	}
	v = v.Elem()

	fields, err := taggedFields(v.Type())
	if err != nil {
		return err
	}

	var bitOffset uint
	for _, f := range fields {
		mask := uint64((1 << f.bits) - 1)
		fieldBits := (packed >> bitOffset) & mask
		fieldValue := v.Field(f.index)

		switch fieldValue.Kind() {
		case reflect.Bool:
			fieldValue.SetBool(fieldBits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldValue.SetUint(fieldBits)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fieldValue.SetInt(int64(fieldBits))
		default:
			return fmt.Errorf("bitfield: Unpack: unsupported field type %v for field %s", fieldValue.Kind(), v.Type().Field(f.index).Name)
		}
		bitOffset += f.bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return fmt.Errorf("bitfield: Unpack: total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return nil
}
