package main

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestVersionCommandOutput(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	got := out.String()
	if !strings.HasPrefix(got, "relay "+Version) {
		t.Errorf("output = %q, want relay %s prefix", got, Version)
	}
	if !strings.Contains(got, runtime.Version()) {
		t.Errorf("output missing Go version: %q", got)
	}
	if !strings.Contains(got, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("output missing platform: %q", got)
	}
}

func TestVersionCommandRegistered(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if c.Use == "version" {
			return
		}
	}
	t.Error("version command not registered on root")
}
