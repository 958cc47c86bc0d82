// Package testutils holds assertion helpers shared by tests across the
// repository.
package testutils

import (
	"fmt"
	"reflect"

	"github.com/davecgh/go-spew/spew"
	"github.com/easyctf/openctf-judge/go/sktest"
	"github.com/stretchr/testify/require"
)

// AssertDeepEqual fails the test unless a and b pass reflect.DeepEqual.
// Unlike require.Equal it never treats distinct types as comparable, and
// the failure message spews both values in full.
func AssertDeepEqual(t sktest.TestingT, a, b interface{}) {
	if !reflect.DeepEqual(a, b) {
		require.FailNow(t, fmt.Sprintf("Objects do not match: \na:\n%s\n\nb:\n%s\n", spew.Sprint(a), spew.Sprint(b)))
	}
}

// AssertCopy asserts that b is a deep copy of a: deep-equal, with every
// direct field set to a non-zero value, and with no reference fields
// pointing at the same underlying object. Passing a struct with a zero
// field fails on purpose; a test using AssertCopy must fill in every
// field so that a Copy method which misses one is caught. Arguments must
// be structs or pointers to structs.
func AssertCopy(t sktest.TestingT, a, b interface{}) {
	AssertDeepEqual(t, a, b)

	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	require.Equal(t, va.Type(), vb.Type(), "Arguments are different types.")
	for va.Kind() == reflect.Ptr {
		require.Equal(t, reflect.Ptr, vb.Kind(), "Arguments are different types (pointer vs. non-pointer)")
		va = va.Elem()
		vb = vb.Elem()
	}
	require.Equal(t, reflect.Struct, va.Kind(), "Not a struct or pointer to struct.")
	require.Equal(t, reflect.Struct, vb.Kind(), "Arguments are different types (pointer vs. non-pointer)")
	for i := 0; i < va.NumField(); i++ {
		fa := va.Field(i)
		z := reflect.Zero(fa.Type())
		if reflect.DeepEqual(fa.Interface(), z.Interface()) {
			require.FailNow(t, fmt.Sprintf("Missing field %q (or set to zero value).", va.Type().Field(i).Name))
		}
		if fa.Kind() == reflect.Map || fa.Kind() == reflect.Ptr || fa.Kind() == reflect.Slice {
			fb := vb.Field(i)
			require.NotEqual(t, fa.Pointer(), fb.Pointer(), "Field %q not deep-copied.", va.Type().Field(i).Name)
		}
	}
}
