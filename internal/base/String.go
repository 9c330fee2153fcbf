package base

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unsafe"
)

/***************************************
 * Zero-copy string/byte conversions
 *
 * Used on the hot path of fingerprinting (feeding string fields into the
 * blake3 digester without an intermediate []byte allocation).
 ***************************************/

func UnsafeBytesFromString(in string) []byte {
	return unsafe.Slice(unsafe.StringData(in), len(in))
}
func UnsafeStringFromBytes(raw []byte) string {
	return unsafe.String(unsafe.SliceData(raw), len(raw))
}
func UnsafeStringFromBuffer(buf interface{ Bytes() []byte }) string {
	return UnsafeStringFromBytes(buf.Bytes())
}

/***************************************
 * fmt.Stringer helpers
 ***************************************/

type StringerString struct {
	S string
}

func (x StringerString) String() string { return x.S }

type lambdaStringer func() string

func (x lambdaStringer) String() string { return x() }

func MakeStringer(fn func() string) fmt.Stringer {
	return lambdaStringer(fn)
}

type jointStringer[T fmt.Stringer] struct {
	it    []T
	delim string
}

func (join jointStringer[T]) String() string {
	var notFirst bool
	sb := strings.Builder{}
	for _, x := range join.it {
		if notFirst {
			sb.WriteString(join.delim)
		}
		sb.WriteString(x.String())
		notFirst = true
	}
	return sb.String()
}

func Join[T fmt.Stringer](delim string, it ...T) fmt.Stringer {
	return jointStringer[T]{delim: delim, it: it}
}
func JoinString[T fmt.Stringer](delim string, it ...T) string {
	return Join(delim, it...).String()
}

/***************************************
 * Identifier / word splitting
 ***************************************/

var re_nonAlphaNumeric = regexp.MustCompile(`[^\w\d]+`)

func SanitizeIdentifier(in string) string {
	return re_nonAlphaNumeric.ReplaceAllString(in, "_")
}

var re_whiteSpace = regexp.MustCompile(`\s+`)

func SplitWords(in string) []string {
	return re_whiteSpace.Split(in, -1)
}

func MakeString(x any) string {
	switch it := x.(type) {
	case string:
		return it
	case []byte:
		return UnsafeStringFromBytes(it)
	case fmt.Stringer:
		return it.String()
	default:
		return fmt.Sprint(x)
	}
}

/***************************************
 * FourCC: small fixed tag used by the archive format
 ***************************************/

type FourCC uint32

func BytesToFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}
func MakeFourCC(a, b, c, d rune) FourCC {
	return BytesToFourCC(byte(a), byte(b), byte(c), byte(d))
}
func StringToFourCC(in string) FourCC {
	runes := []rune(in)
	Assert(func() bool { return len(runes) >= 4 })
	return MakeFourCC(runes[0], runes[1], runes[2], runes[3])
}
func (x FourCC) Valid() bool { return x != 0 }
func (x FourCC) Bytes() (result [4]byte) {
	result[0] = byte(x)
	result[1] = byte(x >> 8)
	result[2] = byte(x >> 16)
	result[3] = byte(x >> 24)
	return
}
func (x FourCC) String() string {
	b := x.Bytes()
	return string(b[:])
}
func (x *FourCC) Serialize(ar Archive) {
	var raw [4]byte
	if ar.Flags().IsLoading() {
		ar.Raw(raw[:])
		*x = BytesToFourCC(raw[0], raw[1], raw[2], raw[3])
	} else {
		raw = x.Bytes()
		ar.Raw(raw[:])
	}
}

/***************************************
 * StringSet: ordered, mutable set of strings
 *
 * An ordered list of strings: adding and removing keep the order of the
 * other entries, and only Sort reorders them. Append keeps duplicates; AppendUniq/PrependUniq skip values already
 * present. MakeStringerSet builds one for debug messages.
 ***************************************/

type StringSet []string

func NewStringSet(x ...string) StringSet { return StringSet(CopySlice(x...)) }

func MakeStringerSet[T fmt.Stringer](items ...T) StringSet {
	result := make(StringSet, len(items))
	for i, it := range items {
		result[i] = it.String()
	}
	return result
}

func (set StringSet) Len() int        { return len(set) }
func (set StringSet) Slice() []string { return set }
func (set *StringSet) Ref() *[]string { return (*[]string)(set) }

func (set StringSet) IndexOf(it string) (int, bool) {
	return IndexOf(it, set...)
}
func (set StringSet) Contains(it ...string) bool { return Contains(set, it...) }
func (set StringSet) Any(it ...string) bool {
	for _, x := range it {
		if Contains(set, x) {
			return true
		}
	}
	return false
}
func (set StringSet) IsUniq() bool { return IsUniq(set...) }

func (set *StringSet) Append(it ...string) *StringSet {
	*set = append(*set, it...)
	return set
}
func (set *StringSet) Prepend(it ...string) *StringSet {
	*set = append(CopySlice(it...), (*set)...)
	return set
}
func (set *StringSet) AppendUniq(it ...string) *StringSet {
	*set = AppendUniq(*set, it...)
	return set
}
func (set *StringSet) PrependUniq(it ...string) *StringSet {
	fresh := RemoveUnless(func(s string) bool { return !Contains(*set, s) }, it...)
	*set = append(StringSet(CopySlice(fresh...)), (*set)...)
	return set
}
func (set *StringSet) Remove(it ...string) *StringSet {
	*set = Remove(*set, it...)
	return set
}
func (set *StringSet) RemoveAll(it ...string) *StringSet {
	return set.Remove(it...)
}
func (set *StringSet) Delete(i int) *StringSet {
	*set = append((*set)[:i], (*set)[i+1:]...)
	return set
}
func (set *StringSet) Clear() *StringSet {
	*set = (*set)[:0]
	return set
}
func (set *StringSet) Assign(values []string) *StringSet {
	*set = StringSet(CopySlice(values...))
	return set
}
func (set StringSet) Equals(other StringSet) bool {
	if len(set) != len(other) {
		return false
	}
	for i, it := range set {
		if it != other[i] {
			return false
		}
	}
	return true
}
func (set StringSet) Sort() {
	sort.Strings(set)
}
func (set StringSet) Join(sep string) string {
	return strings.Join(set, sep)
}
func (set StringSet) String() string { return set.Join(", ") }

// Set implements flag.Value-style parsing of a comma-separated list, used
// when a StringSet is exposed as a command flag.
func (set *StringSet) Set(in string) error {
	parts := strings.Split(in, ",")
	result := make(StringSet, 0, len(parts))
	for _, p := range parts {
		result = append(result, strings.TrimSpace(p))
	}
	*set = result
	return nil
}

func (set *StringSet) Serialize(ar Archive) {
	SerializeMany(ar, func(s *string) { ar.String(s) }, set.Ref())
}

/***************************************
 * Command-line argument escaping (response files)
 ***************************************/

func EscapeCommandLineArg(arg string) string {
	if !strings.ContainsAny(arg, " \t\"") {
		return arg
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range arg {
		if r == '"' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}
