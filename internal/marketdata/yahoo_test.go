package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSkipsLastAttempt(t *testing.T) {
	c := &Client{maxRetries: 3, retryDelayBase: 150 * time.Millisecond}

	begin := time.Now()
	c.backoff(c.maxRetries - 1)
	assert.Less(t, time.Since(begin), 50*time.Millisecond,
		"no sleep before returning the final error")

	begin = time.Now()
	c.backoff(0)
	assert.GreaterOrEqual(t, time.Since(begin), c.retryDelayBase)
}
