package webhook

import (
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// appendQuery merges payload into the query string of rawURL. Nested maps and
// slices use bracket notation (a[b]=1, list[0]=x), the form most webhook
// receivers parse.
func appendQuery(rawURL string, payload map[string]any) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if len(payload) == 0 {
		return u.String(), nil
	}

	values := u.Query()
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if err := encodeQueryValue(values, k, payload[k]); err != nil {
			return "", err
		}
	}

	u.RawQuery = values.Encode()
	return u.String(), nil
}

func encodeQueryValue(values url.Values, key string, v any) error {
	switch val := v.(type) {
	case nil:
		values.Add(key, "")
	case string:
		values.Add(key, val)
	case bool:
		// Booleans follow the 1/0 convention of form encoders.
		if val {
			values.Add(key, "1")
		} else {
			values.Add(key, "0")
		}
	case fmt.Stringer:
		values.Add(key, val.String())
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if err := encodeQueryValue(values, key+"["+k+"]", val[k]); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range val {
			if err := encodeQueryValue(values, key+"["+strconv.Itoa(i)+"]", item); err != nil {
				return err
			}
		}
	default:
		return encodeReflectedValue(values, key, reflect.ValueOf(v))
	}
	return nil
}

func encodeReflectedValue(values url.Values, key string, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		values.Add(key, strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		values.Add(key, strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		values.Add(key, strconv.FormatFloat(rv.Float(), 'f', -1, 64))
	case reflect.String:
		values.Add(key, rv.String())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := encodeQueryValue(values, key+"["+strconv.Itoa(i)+"]", rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: query key %q has non-string map keys", ErrInvalidPayload, key)
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		for _, k := range keys {
			item := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()
			if err := encodeQueryValue(values, key+"["+k+"]", item); err != nil {
				return err
			}
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			values.Add(key, "")
			return nil
		}
		return encodeQueryValue(values, key, rv.Elem().Interface())
	default:
		return fmt.Errorf("%w: query key %q has unsupported type %s", ErrInvalidPayload, key, strings.TrimPrefix(rv.Type().String(), "*"))
	}
	return nil
}
