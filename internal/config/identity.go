package config

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
)

const (
	// CodexDefaultOriginator is the originator a Codex upstream expects.
	CodexDefaultOriginator = "codex_cli_rs"
	// CodexClientVersion is sent as the version header on Codex requests.
	CodexClientVersion    = "0.104.0"
	originatorOverrideEnv = "LLMBRIDGE_CODEX_ORIGINATOR"
)

// CodexOriginator returns the originator header value.
func CodexOriginator() string {
	if candidate := strings.TrimSpace(os.Getenv(originatorOverrideEnv)); isValidHeaderValue(candidate) {
		return candidate
	}
	return CodexDefaultOriginator
}

// ApplyCodexHeaders sets the client identity headers a Codex Responses
// upstream checks, plus session_id when the request carries one.
func ApplyCodexHeaders(headers http.Header, sessionID string) {
	if headers == nil {
		return
	}
	headers.Set("User-Agent", CodexUserAgent())
	headers.Set("originator", CodexOriginator())
	headers.Set("version", CodexClientVersion)
	if sessionID != "" && isValidHeaderValue(sessionID) {
		headers.Set("session_id", sessionID)
	}
}

// CodexUserAgent builds "<originator>/<version> (<os>; <arch>) llmbridge".
func CodexUserAgent() string {
	ua := fmt.Sprintf("%s/%s (%s; %s) llmbridge", CodexOriginator(), CodexClientVersion, osName(), archName())
	if !isValidHeaderValue(ua) {
		return CodexOriginator() + "/" + CodexClientVersion
	}
	return ua
}

func osName() string {
	switch runtime.GOOS {
	case "darwin":
		return "Mac OS"
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	}
	return runtime.GOOS
}

func archName() string {
	if runtime.GOARCH == "amd64" {
		return "x86_64"
	}
	return runtime.GOARCH
}

func isValidHeaderValue(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}
