package sampler

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTextReporter(t *testing.T) {
	assert := assert.New(t)

	var out bytes.Buffer
	rep := NewTextReporter(&out, 10, 4)
	now := time.Unix(1000, 0)
	rep.clock = func() time.Time {
		now = now.Add(500 * time.Millisecond)
		return now
	}

	rep.Progress(9, 40, Transient)
	assert.Equal("\riteration 9 of 40 transient (0.0 it/s)", out.String())

	out.Reset()
	rep.Progress(19, 40, 0)
	assert.Equal("\riteration 19 of 40 saving 0 (20.0 it/s)", out.String())

	out.Reset()
	rep.Progress(39, 40, 2)
	assert.True(strings.HasSuffix(out.String(), "\n"))
}

func TestLogAndMultiReporter(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zap.DebugLevel)
	rec := &recorder{}
	rep := MultiReporter{LogReporter{Log: zap.New(core), Chain: 3}, nil, rec}

	rep.Progress(4, 10, Transient)
	rep.Progress(9, 10, 1)

	assert.Equal([]int{4, 9}, rec.iters)
	entries := logs.All()
	assert.Len(entries, 2)
	fields := entries[1].ContextMap()
	assert.Equal(int64(3), fields["chain"])
	assert.Equal(int64(1), fields["slot"])
	assert.Equal(true, entries[0].ContextMap()["transient"])
}
