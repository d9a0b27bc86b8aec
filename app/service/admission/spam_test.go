package admission

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckSpam_PromotionalKeywords(t *testing.T) {
	svc, _ := testService(testConfig())

	isSpam, pattern := svc.CheckSpam("BUY NOW! Limited time offer! http://a http://b http://c")
	require.True(t, isSpam)
	require.Equal(t, "buy now", pattern)
}

func TestCheckSpam_ExcessiveLinks(t *testing.T) {
	svc, _ := testService(testConfig())

	isSpam, pattern := svc.CheckSpam("check http://a.example and http://b.example and https://c.example")
	require.True(t, isSpam)
	require.Equal(t, "excessive_links", pattern)

	isSpam, _ = svc.CheckSpam("just two: http://a.example https://b.example")
	require.False(t, isSpam)
}

func TestCheckSpam_ExcessiveCaps(t *testing.T) {
	svc, _ := testService(testConfig())

	isSpam, pattern := svc.CheckSpam("HELLO THIS IS VERY LOUD")
	require.True(t, isSpam)
	require.Equal(t, "excessive_caps", pattern)

	// Short shouting is tolerated
	isSpam, _ = svc.CheckSpam("HELLO!")
	require.False(t, isSpam)
}

func TestCheckSpam_PlainMessage(t *testing.T) {
	svc, _ := testService(testConfig())

	isSpam, pattern := svc.CheckSpam("hello there, how are you today?")
	require.False(t, isSpam)
	require.Empty(t, pattern)
}

func TestCheckSpam_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.AntiBan.Disabled = true
	svc, _ := testService(cfg)

	isSpam, _ := svc.CheckSpam("BUY NOW free money guaranteed")
	require.False(t, isSpam)
}

func TestSanitize_PromotionalPhrasing(t *testing.T) {
	svc, _ := testService(testConfig())

	reply := svc.Sanitize("Buy now! Click here for details. Limited time only.")
	require.NotContains(t, reply, "Buy now")
	require.NotContains(t, reply, "Click here")
	require.True(t, strings.Contains(reply, "Consider purchasing"))
	require.True(t, strings.Contains(reply, "You can check"))
}

func TestSanitize_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.AntiBan.Disabled = true
	svc, _ := testService(cfg)

	reply := svc.Sanitize("Buy now!")
	require.Equal(t, "Buy now!", reply)
}
