package version

import (
	"runtime"
	"testing"
)

func TestUserAgent(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "1.2.3"
	if got, want := UserAgent(), "logframe-shipper 1.2.3"; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	for _, k := range []string{"version", "gitCommit", "buildTime", "goVersion", "goos", "goarch"} {
		if _, ok := info[k]; !ok {
			t.Errorf("Info() missing key %q", k)
		}
	}
	if info["goos"] != runtime.GOOS {
		t.Errorf("Info()[goos] = %q, want %q", info["goos"], runtime.GOOS)
	}
}
