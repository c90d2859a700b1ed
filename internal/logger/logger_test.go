package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	}()

	SetLevel("warn")
	Infof("被过滤的 info %d", 1)
	Warnf("保留的 warn %d", 2)
	out := buf.String()
	assert.NotContains(t, out, "被过滤的 info")
	assert.Contains(t, out, "保留的 warn 2")

	buf.Reset()
	SetLevel("debug")
	Debugf("debug 可见")
	assert.Contains(t, buf.String(), "debug 可见")

	// 未知级别落回 info
	buf.Reset()
	SetLevel("loud")
	Debugf("debug 不可见")
	Infof("info 可见")
	out = buf.String()
	assert.NotContains(t, out, "debug 不可见")
	assert.Contains(t, out, "info 可见")
}
