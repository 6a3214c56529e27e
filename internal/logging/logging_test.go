package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupLevels(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Setup(&buf, false)
	assert.False(t, DebugEnabled())

	l := Component("mpc")
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"mpc"`)
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	Setup(&buf, true)
	assert.True(t, DebugEnabled())
	l = Component("sim")
	l.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
