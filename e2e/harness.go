//go:build e2e

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/testcontainers/testcontainers-go"
	tcnetwork "github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	ImageName   = "busybox:1.37-glibc"
	AppPort     = 5000
	WaitTimeout = 2 * time.Minute
)

type Harness struct {
	t          *testing.T
	mu         sync.Mutex
	ctx        context.Context
	Network    *testcontainers.DockerNetwork
	Nodes      map[string]testcontainers.Container
	LogManager *LogManager
	RootDir    string
	BinPath    string
}

// NewHarness creates a bridge network on subnet. The dvnode binary must already be built
// at the project root, statically linked.
func NewHarness(t *testing.T, subnet, gateway string) *Harness {
	ctx := context.Background()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	// Traversing up to find go.mod
	rootDir := wd
	for {
		if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(rootDir)
		if parent == rootDir {
			t.Fatal("could not find project root")
		}
		rootDir = parent
	}
	binPath := filepath.Join(rootDir, "dvnode")
	if _, err := os.Stat(binPath); err != nil {
		t.Fatalf("dvnode binary not found, build it with CGO_ENABLED=0 go build -o dvnode .: %v", err)
	}

	newNetwork, err := tcnetwork.New(ctx,
		tcnetwork.WithAttachable(),
		tcnetwork.WithDriver("bridge"),
		tcnetwork.WithIPAM(&network.IPAM{
			Driver: "default",
			Config: []network.IPAMConfig{
				{
					Subnet:  subnet,
					Gateway: gateway,
				},
			},
		}))
	if err != nil {
		t.Fatal(err)
	}
	h := &Harness{
		t:          t,
		ctx:        ctx,
		Network:    newNetwork,
		Nodes:      make(map[string]testcontainers.Container),
		LogManager: NewLogManager(),
		RootDir:    rootDir,
		BinPath:    binPath,
	}
	t.Cleanup(func() {
		h.Cleanup()
	})
	return h
}

func (h *Harness) StartNode(name string, ip string, nodeConfigPath string) testcontainers.Container {
	h.t.Logf("Starting node %s at %s", name, ip)
	req := testcontainers.ContainerRequest{
		Image:    ImageName,
		Networks: []string{h.Network.Name},
		NetworkAliases: map[string][]string{
			h.Network.Name: {name},
		},
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      h.BinPath,
				ContainerFilePath: "/dvnode",
				FileMode:          0755,
			},
			{
				HostFilePath:      nodeConfigPath,
				ContainerFilePath: "/node.yaml",
				FileMode:          0644,
			},
		},
		Cmd:        []string{"/dvnode", "run", "-v", "-c", "/node.yaml"},
		WaitingFor: wait.ForLog("dvnode has been initialized").WithStartupTimeout(30 * time.Second),
		HostConfigModifier: func(hostConfig *container.HostConfig) {
			hostConfig.AutoRemove = false
		},
		EndpointSettingsModifier: func(m map[string]*network.EndpointSettings) {
			if s, ok := m[h.Network.Name]; ok {
				s.IPAMConfig = &network.EndpointIPAMConfig{
					IPv4Address: ip,
				}
			}
		},
		LogConsumerCfg: &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{
				&UnifiedLogConsumer{Node: name, Manager: h.LogManager},
			},
		},
		Name: h.t.Name() + "-" + name,
	}
	cont, err := testcontainers.GenericContainer(h.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		h.t.Fatalf("failed to start container %s: %v", name, err)
	}
	h.mu.Lock()
	h.Nodes[name] = cont
	h.mu.Unlock()
	return cont
}

// WaitForLog waits until the node has logged a line matching the literal text
func (h *Harness) WaitForLog(nodeName string, text string) {
	h.WaitForMatch(nodeName, regexp.QuoteMeta(text))
}

func (h *Harness) WaitForMatch(nodeName string, pattern string) {
	h.t.Helper()
	sub, err := h.LogManager.Subscribe(nodeName, pattern)
	if err != nil {
		h.t.Fatalf("failed to subscribe: %v", err)
	}
	defer h.LogManager.Unsubscribe(sub)

	select {
	case <-sub.MatchCh:
		return
	case <-time.After(WaitTimeout):
		h.t.Fatalf("timed out waiting for pattern %q in node %s", pattern, nodeName)
	case <-h.ctx.Done():
		h.t.Fatal("context canceled")
	}
}

func (h *Harness) StopNode(nodeName string) {
	h.mu.Lock()
	c, ok := h.Nodes[nodeName]
	h.mu.Unlock()
	if !ok {
		h.t.Fatalf("node %s not found", nodeName)
	}
	timeout := 10 * time.Second
	if err := c.Stop(h.ctx, &timeout); err != nil {
		h.t.Fatalf("failed to stop %s: %v", nodeName, err)
	}
}

func (h *Harness) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, c := range h.Nodes {
		if err := c.Terminate(h.ctx); err != nil {
			h.t.Logf("failed to terminate container %s: %v", name, err)
		}
	}
	if err := h.Network.Remove(context.Background()); err != nil {
		h.t.Logf("failed to remove network: %v", err)
	}
}
