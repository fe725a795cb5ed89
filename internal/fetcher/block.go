package fetcher

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot page detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockRobotCheck BlockType = "robot_check"
	BlockSlider     BlockType = "slider"
)

// DetectBlock reports whether body is an anti-bot interstitial rather than
// the requested page.
func DetectBlock(resp *http.Response, body string) (bool, BlockType) {
	if resp != nil && resp.Header.Get("cf-mitigated") == "challenge" {
		return true, BlockCloudflare
	}

	lower := strings.ToLower(body)

	switch {
	case strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification"):
		return true, BlockCloudflare
	case strings.Contains(lower, "<title>robot check</title>") ||
		strings.Contains(lower, "/errors/validatecaptcha"):
		return true, BlockRobotCheck
	case strings.Contains(lower, "punish?x5secdata") ||
		strings.Contains(lower, "nc_1_n1z") ||
		strings.Contains(lower, "slide to verify"):
		return true, BlockSlider
	case len(body) < 4000 && strings.Contains(lower, "captcha"):
		return true, BlockCaptcha
	}

	return false, BlockNone
}
