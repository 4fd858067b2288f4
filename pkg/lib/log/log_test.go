package log

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevels(t *testing.T) {
	lv := ParseLevels("core=debug, core/locator=error ,warn,bogus=loud")

	assert.Equal(t, slog.LevelWarn, lv.Default)
	assert.Equal(t, slog.LevelDebug, lv.For("core"))
	assert.Equal(t, slog.LevelDebug, lv.For("core/channel"))
	assert.Equal(t, slog.LevelError, lv.For("core/locator"))
	assert.Equal(t, slog.LevelError, lv.For("core/locator/dns"))
	assert.Equal(t, slog.LevelWarn, lv.For("cmd/tcf"))
	assert.NotContains(t, lv.Components, "bogus")
}

func TestParseLevels_Empty(t *testing.T) {
	lv := ParseLevels("")
	assert.Equal(t, slog.LevelInfo, lv.Default)
	assert.Empty(t, lv.Components)
}

func TestLazyLogger_FollowsOutputAndLevel(t *testing.T) {
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		Configure("", "")
	})

	buf := &bytes.Buffer{}
	SetOutput(buf)
	Configure("core/channel=debug,warn", "text")

	l := Logger("core/channel")
	l.Debug("通道调试", "peer", "p1")
	assert.Contains(t, buf.String(), "通道调试")
	assert.Contains(t, buf.String(), "component=core/channel")
	assert.Contains(t, buf.String(), "peer=p1")

	buf.Reset()
	Logger("core/locator").Info("被过滤")
	assert.Empty(t, buf.String())

	buf.Reset()
	Configure("", "json")
	Logger("core/locator").Info("json 输出", "n", 1)
	assert.Contains(t, buf.String(), `"component":"core/locator"`)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", TruncateID("abc", 8))
	assert.Equal(t, "abcdefgh", TruncateID("abcdefghij", 8))
}
