package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// DefaultJava is the Java binary looked up on PATH when none is configured.
const DefaultJava = "java"

// Availability describes whether the toolchain can run.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	JavaPath  string `json:"java_path,omitempty"`
	JarPath   string `json:"jar_path,omitempty"`
}

// Capability reports toolchain availability.
type Capability interface {
	Check(ctx context.Context) Availability
}

// Invalidator is implemented by capabilities that cache their answer.
type Invalidator interface {
	Invalidate()
}

// LocalProbe checks for a Java runtime and a readable commcare-cli.jar on the
// local machine.
type LocalProbe struct {
	Java string
	Jar  string

	lookPath func(string) (string, error)
}

// NewLocalProbe returns a probe for the given binaries. An empty java resolves
// DefaultJava on PATH.
func NewLocalProbe(java, jar string) *LocalProbe {
	if java == "" {
		java = DefaultJava
	}
	return &LocalProbe{Java: java, Jar: jar, lookPath: exec.LookPath}
}

// Check never blocks on anything but a PATH lookup and a stat.
func (p *LocalProbe) Check(_ context.Context) Availability {
	if p.Jar == "" {
		return Availability{Reason: "commcare-cli.jar is not configured"}
	}
	javaPath, err := p.lookPath(p.Java)
	if err != nil {
		return Availability{Reason: fmt.Sprintf("java runtime not found: %v", err)}
	}
	info, err := os.Stat(p.Jar)
	if err != nil {
		return Availability{Reason: fmt.Sprintf("commcare-cli.jar not readable: %v", err)}
	}
	if info.IsDir() {
		return Availability{Reason: fmt.Sprintf("commcare-cli.jar path %s is a directory", p.Jar)}
	}
	return Availability{Available: true, JavaPath: javaPath, JarPath: p.Jar}
}

// CachedProbe memoizes another capability until invalidated.
type CachedProbe struct {
	probe Capability

	mu     sync.Mutex
	cached *Availability
}

// NewCachedProbe wraps probe.
func NewCachedProbe(probe Capability) *CachedProbe {
	return &CachedProbe{probe: probe}
}

// Check returns the cached availability, probing on first use.
func (c *CachedProbe) Check(ctx context.Context) Availability {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil {
		return *c.cached
	}
	a := c.probe.Check(ctx)
	c.cached = &a
	recordProbe(a)
	return a
}

// Invalidate drops the cached answer so the next Check probes again.
func (c *CachedProbe) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
