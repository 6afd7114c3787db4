package ir

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// cval is a tiny closed tree of JSON value kinds used only to produce the
// canonical encoding (spec §4.1, §6.1): sorted object keys, no
// insignificant whitespace, NFC-normalized strings, and numbers written
// without ambiguity between integers and integer-valued floats. It is
// deliberately independent of encoding/json's map-ordering and
// float-formatting defaults, which are not specified to be stable across
// Go versions.
type cval interface {
	writeTo(sb *strings.Builder)
}

type cobj map[string]cval

func (o cobj) writeTo(sb *strings.Builder) {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeJSONString(sb, k)
		sb.WriteByte(':')
		o[k].writeTo(sb)
	}
	sb.WriteByte('}')
}

type carr []cval

func (a carr) writeTo(sb *strings.Builder) {
	sb.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			sb.WriteByte(',')
		}
		v.writeTo(sb)
	}
	sb.WriteByte(']')
}

type cstr string

func (s cstr) writeTo(sb *strings.Builder) { writeJSONString(sb, string(s)) }

type cint int64

func (n cint) writeTo(sb *strings.Builder) { sb.WriteString(strconv.FormatInt(int64(n), 10)) }

type cfloat float64

func (f cfloat) writeTo(sb *strings.Builder) {
	s := strconv.FormatFloat(float64(f), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	sb.WriteString(s)
}

type cbool bool

func (b cbool) writeTo(sb *strings.Builder) {
	if b {
		sb.WriteString("true")
	} else {
		sb.WriteString("false")
	}
}

type cnull struct{}

func (cnull) writeTo(sb *strings.Builder) { sb.WriteString("null") }

func writeJSONString(sb *strings.Builder, s string) {
	s = norm.NFC.String(s)
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
				continue
			}
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
}

func marshalCanonical(v cval) []byte {
	var sb strings.Builder
	v.writeTo(&sb)
	return []byte(sb.String())
}
