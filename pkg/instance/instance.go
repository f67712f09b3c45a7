package instance

import (
	"fmt"
	"os"
)

// GetID names this process in lock owners and logs. FOODFUND_INSTANCE_ID wins;
// otherwise the host name and pid are used, which is unique per pod.
func GetID() string {
	if id := os.Getenv("FOODFUND_INSTANCE_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "foodfund"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
