package services

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultHttpClient is shared by every outbound API client of the process.
var DefaultHttpClient = sync.OnceValue(func() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
})
