package instance

import (
	"os"
	"strconv"
	"strings"
	"testing"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("FOODFUND_INSTANCE_ID", "cron-7")
	if got := GetID(); got != "cron-7" {
		t.Fatalf("expected env id, got %q", got)
	}
}

func TestGetIDFallsBackToHostAndPid(t *testing.T) {
	t.Setenv("FOODFUND_INSTANCE_ID", "")
	got := GetID()
	if !strings.HasSuffix(got, "-"+strconv.Itoa(os.Getpid())) {
		t.Fatalf("expected pid suffix, got %q", got)
	}
}
