package main

import (
	"net/http"
	"time"
)

// All outbound calls share one timeout. A timed-out call surfaces as a
// normal error and takes the same skip-item path as a malformed response.
const externalHTTPTimeout = 30 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: externalHTTPTimeout,
}
