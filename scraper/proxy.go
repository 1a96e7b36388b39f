package scraper

import "sync"

// ProxyRotator round-robins egress proxies and quarantines failing ones.
// A zero-proxy rotator always returns the empty string, meaning direct
// connection.
type ProxyRotator struct {
	mu      sync.Mutex
	proxies []string
	index   int
	failed  map[string]struct{}
}

// NewProxyRotator builds a rotator over the given proxy URLs.
func NewProxyRotator(proxies []string) *ProxyRotator {
	return &ProxyRotator{
		proxies: append([]string(nil), proxies...),
		failed:  make(map[string]struct{}),
	}
}

// Next returns the next non-failed proxy in round-robin order. When every
// proxy is marked failed, the failed set is cleared and rotation resumes;
// callers therefore always get a proxy when any are configured.
func (pr *ProxyRotator) Next() string {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if len(pr.proxies) == 0 {
		return ""
	}

	if proxy, ok := pr.nextLocked(); ok {
		return proxy
	}

	// All proxies failed: full reset, retry once.
	pr.failed = make(map[string]struct{})
	proxy, _ := pr.nextLocked()
	return proxy
}

func (pr *ProxyRotator) nextLocked() (string, bool) {
	for range pr.proxies {
		proxy := pr.proxies[pr.index]
		pr.index = (pr.index + 1) % len(pr.proxies)
		if _, bad := pr.failed[proxy]; !bad {
			return proxy, true
		}
	}
	return "", false
}

// MarkFailed quarantines a proxy. Marking the empty string is a no-op.
func (pr *ProxyRotator) MarkFailed(proxy string) {
	if proxy == "" {
		return
	}
	pr.mu.Lock()
	pr.failed[proxy] = struct{}{}
	pr.mu.Unlock()
}

// Len reports the number of configured proxies.
func (pr *ProxyRotator) Len() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return len(pr.proxies)
}
