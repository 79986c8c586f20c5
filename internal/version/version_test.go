package version

import "testing"

func TestCurrent(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	info := Current()
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", info.Version)
	}
	if info.GitSHA != GitSHA || info.BuildTime != BuildTime {
		t.Errorf("Current() = %+v, want GitSHA=%q BuildTime=%q", info, GitSHA, BuildTime)
	}
}
