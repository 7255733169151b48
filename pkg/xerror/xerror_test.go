package xerror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// UnitTest for xCategory
func TestXCategory(t *testing.T) {
	assert.Equal(t, Normal.Name(), "normal")
	assert.Equal(t, Source.Name(), "source")
	assert.Equal(t, Dest.Name(), "dest")
	assert.Equal(t, Meta.Name(), "meta")
	assert.Equal(t, DDL.Name(), "ddl")
}

func TestXError_Error(t *testing.T) {
	errMsg := "test error"
	err := Errorf(Normal, errMsg)
	assert.NotNil(t, err)

	var xerr *XError
	assert.True(t, errors.As(err, &xerr))
	assert.Equal(t, xerr.Error(), fmt.Sprintf("[%s] %s", Normal.Name(), errMsg))

	err = Wrap(err, Dest, "wrapped error")
	assert.NotNil(t, err)

	assert.True(t, errors.As(err, &xerr))
	assert.Equal(t, xerr.Error(), fmt.Sprintf("[%s] %s", Normal.Name(), errMsg))
}

// UnitTest for XError
func TestErrorf(t *testing.T) {
	errMsg := "test error"
	err := Errorf(Normal, errMsg)
	assert.NotNil(t, err)

	var xerr *XError
	assert.True(t, errors.As(err, &xerr))
	assert.True(t, xerr.IsRecoverable())
	assert.Equal(t, xerr.Category(), Normal)
	assert.Equal(t, xerr.err.Error(), errMsg)
}

func TestWrap(t *testing.T) {
	errMsg := "source connect error"
	err := errors.New(errMsg)
	wrappedErr := Wrap(err, Source, "wrapped error")
	assert.NotNil(t, wrappedErr)

	var xerr *XError
	assert.True(t, errors.As(wrappedErr, &xerr))
	assert.True(t, xerr.IsRecoverable())
	assert.Equal(t, xerr.Category(), Source)
	assert.Equal(t, xerr.err.Error(), errMsg)
}

func TestWrapf(t *testing.T) {
	errMsg := "ddl test error"
	err := errors.New(errMsg)
	wrappedErr := Wrapf(err, DDL, "wrapped error: %s", "foo")
	assert.NotNil(t, wrappedErr)

	var xerr *XError
	assert.True(t, errors.As(wrappedErr, &xerr))
	assert.True(t, xerr.IsRecoverable())
	assert.Equal(t, xerr.Category(), DDL)
	assert.Equal(t, xerr.err.Error(), errMsg)
}

func TestIs(t *testing.T) {
	errTableNotFound := NewWithoutStack(Meta, "table not found")
	wrappedErr := XWrapf(errTableNotFound, "table id: %d", 33415)
	assert.NotNil(t, wrappedErr)

	assert.True(t, errors.Is(wrappedErr, errTableNotFound))

	var xerr *XError
	assert.True(t, errors.As(wrappedErr, &xerr))
	assert.True(t, xerr.IsRecoverable())
	assert.Equal(t, xerr.Category(), Meta)
}

func TestPanic(t *testing.T) {
	errMsg := "test panic"
	err := Panic(Normal, errMsg)
	assert.NotNil(t, err)

	var xerr *XError
	assert.True(t, errors.As(err, &xerr))
	assert.True(t, xerr.IsPanic())
	assert.Equal(t, xerr.Category(), Normal)
	assert.Equal(t, xerr.err.Error(), errMsg)
}

func TestPanicf(t *testing.T) {
	errMsg := "test panicf"
	err := Panicf(Normal, errMsg)
	assert.NotNil(t, err)

	var xerr *XError
	assert.True(t, errors.As(err, &xerr))
	assert.True(t, xerr.IsPanic())
	assert.Equal(t, xerr.Category(), Normal)
	assert.Equal(t, xerr.err.Error(), errMsg)
}
