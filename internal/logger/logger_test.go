package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DoesNotPanic(t *testing.T) {
	log := New("showcanvas-test")
	assert.NotPanics(t, func() {
		log.Info().Str("k", "v").Msg("smoke")
	})
}
