package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookRegistry_RunsInOrderAndStopsOnError(t *testing.T) {
	reg := NewHookRegistry[*[]string]()
	boom := errors.New("boom")

	reg.OnBeforeSave(func(_ context.Context, log *[]string) error {
		*log = append(*log, "first")
		return nil
	})
	reg.OnBeforeSave(func(_ context.Context, log *[]string) error {
		*log = append(*log, "second")
		return boom
	})
	reg.OnBeforeSave(func(_ context.Context, log *[]string) error {
		*log = append(*log, "third")
		return nil
	})

	var log []string
	err := reg.Run(context.Background(), BeforeSave, &log)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, log)

	assert.NoError(t, reg.Run(context.Background(), AfterSave, &log))
}
