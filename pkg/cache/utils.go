package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// GenerateKeyWithParams joins prefix and params with ":".
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		b.WriteByte(':')
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// assign copies an in-memory value into dest. Values of a compatible type are
// assigned directly; anything else round-trips through JSON.
func assign(dest, value interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("cache: dest must be a non-nil pointer, got %T", dest)
	}
	target := dv.Elem()

	vv := reflect.ValueOf(value)
	if vv.IsValid() {
		if vv.Type().AssignableTo(target.Type()) {
			target.Set(vv)
			return nil
		}
		if vv.Kind() == reflect.Pointer && !vv.IsNil() && vv.Elem().Type().AssignableTo(target.Type()) {
			target.Set(vv.Elem())
			return nil
		}
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, dest)
}
