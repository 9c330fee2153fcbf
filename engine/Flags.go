package engine

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

/***************************************
 * Flags encoder (§4.5, §8 scenario S8)
 *
 * Encodes a key's field dictionary into a sorted, duplicate-free sequence
 * of "field.path=value" tokens (the CLI-facing "--" prefix is left off):
 * nested structs flatten by dotted path,
 * slices/arrays by ".0", ".1", ... index, maps by ".key". Decoding walks
 * the same reflection shape in reverse.
 *
 * The teacher's own flags layer (utils.CommandFlagsVisitor) requires each
 * field to be explicitly registered with cfv.Persistent/cfv.Variable --
 * fine for a fixed set of CLI-facing options, but the spec's fingerprint
 * needs to walk *any* key type's fields automatically. There is no
 * reflection-free way to do that generically, so this one corner of the
 * engine is built on the standard library's reflect package; every other
 * concern in this repo still reaches for the corpus's own libraries
 * first. Leaf field types follow the same single-method contract the
 * teacher's own parsable flags use (String() string, Set(string) error --
 * the stdlib flag.Value shape), so any type already wired into the
 * teacher's CLI flags (CompressionFormat, BoolVar, ...) works here with no
 * extra glue.
 ***************************************/

// FlagValue is the leaf encoding contract: any field type satisfying it
// is encoded by its String() form and decoded through Set, exactly like
// the teacher's own CommandParsableFlags leaf fields.
type FlagValue interface {
	String() string
	Set(string) error
}

// EncodeFlags walks v (a struct, or pointer to one) and returns a sorted,
// duplicate-free list of "path=value" tokens (without the "--" prefix;
// callers that need the CLI-facing form can add it when rendering).
func EncodeFlags(v interface{}) []string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	// copy into an addressable value so pointer-receiver FlagValue leaf
	// types (e.g. base.Digest.Set) are also detected on the encode path,
	// not just on decode.
	addressable := reflect.New(rv.Type()).Elem()
	addressable.Set(rv)

	var tokens []string
	encodeValue(addressable, "", &tokens)
	sort.Strings(tokens)
	return dedupSorted(tokens)
}

// DecodeFlags is the inverse of EncodeFlags: it applies each "path=value"
// (or bare "path", flag-form for a boolean true) token to the matching
// field reached by walking dest's shape.
func DecodeFlags(dest interface{}, tokens []string) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("engine: DecodeFlags needs a pointer, got %T", dest)
	}
	rv = rv.Elem()
	for _, token := range tokens {
		path, value, hasValue := splitToken(token)
		if !hasValue {
			value = "true"
		}
		if err := decodeValue(rv, path, value); err != nil {
			return fmt.Errorf("engine: decode flag %q: %w", token, err)
		}
	}
	return nil
}

func splitToken(token string) (path string, value string, hasValue bool) {
	if i := strings.IndexByte(token, '='); i >= 0 {
		return token[:i], token[i+1:], true
	}
	return token, "", false
}

func dedupSorted(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

func joinPath(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

func encodeValue(rv reflect.Value, path string, tokens *[]string) {
	if !rv.IsValid() {
		return
	}

	if rv.CanAddr() {
		if fv, ok := rv.Addr().Interface().(FlagValue); ok {
			*tokens = append(*tokens, path+"="+fv.String())
			return
		}
	}
	if fv, ok := rv.Interface().(FlagValue); ok {
		*tokens = append(*tokens, path+"="+fv.String())
		return
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return
		}
		encodeValue(rv.Elem(), path, tokens)

	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			encodeValue(rv.Field(i), joinPath(path, field.Name), tokens)
		}

	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			encodeValue(rv.Index(i), joinPath(path, strconv.Itoa(i)), tokens)
		}

	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			encodeValue(rv.MapIndex(k), joinPath(path, fmt.Sprint(k.Interface())), tokens)
		}

	case reflect.Bool:
		*tokens = append(*tokens, fmt.Sprintf("%s=%v", path, rv.Bool()))

	case reflect.String:
		*tokens = append(*tokens, path+"="+rv.String())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*tokens = append(*tokens, fmt.Sprintf("%s=%d", path, rv.Int()))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*tokens = append(*tokens, fmt.Sprintf("%s=%d", path, rv.Uint()))

	case reflect.Float32, reflect.Float64:
		*tokens = append(*tokens, fmt.Sprintf("%s=%s", path, strconv.FormatFloat(rv.Float(), 'g', -1, 64)))

	default:
		*tokens = append(*tokens, fmt.Sprintf("%s=%v", path, rv.Interface()))
	}
}

// decodeValue locates the field at dotted path inside rv and assigns
// value into it, growing slices as needed so fields can arrive in any
// order (EncodeFlags emits them in lexicographic token order, so ".10"
// sorts before ".2").
func decodeValue(rv reflect.Value, path string, value string) error {
	head, rest, hasRest := cutPath(path)

	if rv.CanAddr() {
		if fv, ok := rv.Addr().Interface().(FlagValue); ok && !hasRest {
			return fv.Set(value)
		}
	}

	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return decodeValue(rv.Elem(), path, value)

	case reflect.Struct:
		field := rv.FieldByName(head)
		if !field.IsValid() {
			return fmt.Errorf("no field %q", head)
		}
		if hasRest {
			return decodeValue(field, rest, value)
		}
		return decodeValue(field, "", value)

	case reflect.Slice:
		index, err := strconv.Atoi(head)
		if err != nil {
			return fmt.Errorf("expected slice index, got %q", head)
		}
		for rv.Len() <= index {
			rv.Set(reflect.Append(rv, reflect.Zero(rv.Type().Elem())))
		}
		elem := rv.Index(index)
		if hasRest {
			return decodeValue(elem, rest, value)
		}
		return decodeValue(elem, "", value)

	case reflect.Array:
		index, err := strconv.Atoi(head)
		if err != nil {
			return fmt.Errorf("expected array index, got %q", head)
		}
		if index < 0 || index >= rv.Len() {
			return fmt.Errorf("array index %d out of range", index)
		}
		elem := rv.Index(index)
		if hasRest {
			return decodeValue(elem, rest, value)
		}
		return decodeValue(elem, "", value)

	case reflect.Map:
		if rv.IsNil() {
			rv.Set(reflect.MakeMap(rv.Type()))
		}
		valueType := rv.Type().Elem()
		elem := reflect.New(valueType).Elem()
		if existing := rv.MapIndex(reflect.ValueOf(head).Convert(rv.Type().Key())); existing.IsValid() {
			elem.Set(existing)
		}
		var err error
		if hasRest {
			err = decodeValue(elem, rest, value)
		} else {
			err = decodeValue(elem, "", value)
		}
		if err != nil {
			return err
		}
		rv.SetMapIndex(reflect.ValueOf(head).Convert(rv.Type().Key()), elem)
		return nil

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		rv.SetBool(b)
		return nil

	case reflect.String:
		rv.SetString(value)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		rv.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		rv.SetUint(n)
		return nil

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		rv.SetFloat(f)
		return nil

	default:
		return fmt.Errorf("unsupported field kind %v", rv.Kind())
	}
}

// cutPath splits "a.b.c" into ("a", "b.c", true) or ("a", "", false).
func cutPath(path string) (head string, rest string, hasRest bool) {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i], path[i+1:], true
	}
	return path, "", false
}
