// Package docker implements the remote store against a local Docker daemon.
// It backs the docker:* resource types: images, networks, volumes and
// containers.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/herculesaleixo/stackform/internal/remote"
)

type ContainerConfig struct {
	Image       string             `json:"image"`
	Name        string             `json:"name"`
	Command     []string           `json:"command"`
	Ports       map[string]int     `json:"ports"`
	Env         map[string]string  `json:"env"`
	Networks    []string           `json:"networks"`
	Volumes     []string           `json:"volumes"`
	Labels      map[string]string  `json:"labels"`
	WorkingDir  string             `json:"workingDir"`
	User        string             `json:"user"`
	Restart     string             `json:"restart"`
	Healthcheck *HealthcheckConfig `json:"healthcheck"`
}

type HealthcheckConfig struct {
	Test        []string `json:"test"`
	Interval    string   `json:"interval"`
	Timeout     string   `json:"timeout"`
	StartPeriod string   `json:"startPeriod"`
	Retries     int      `json:"retries"`
}

type NetworkConfig struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver"`
	Internal bool              `json:"internal"`
	Labels   map[string]string `json:"labels"`
}

type VolumeConfig struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

type ImageConfig struct {
	Name string `json:"name"`
}

type Provider struct {
	mu     sync.Mutex
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return remote.Permanent(fmt.Errorf("failed to create Docker client: %w", err))
	}
	p.client = cli
	return nil
}

func (p *Provider) Create(ctx context.Context, req *remote.CreateRequest) (*remote.Result, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker:Image":
		return p.pullImage(ctx, req.Properties)
	case "docker:Network":
		return p.createNetwork(ctx, req.Properties)
	case "docker:Volume":
		return p.createVolume(ctx, req.Properties)
	case "docker:Container":
		return p.createContainer(ctx, req.Properties)
	}
	return nil, remote.Permanent(fmt.Errorf("unknown resource type: %s", req.Type))
}

func (p *Provider) Update(ctx context.Context, req *remote.UpdateRequest) (*remote.Result, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker:Container":
		return p.updateContainer(ctx, req.ID, req.Properties)
	case "docker:Image":
		return p.pullImage(ctx, req.Properties)
	}
	// networks and volumes have no mutable surface; their attributes force
	// replacement instead
	return nil, remote.Permanent(fmt.Errorf("resource type %s does not support in-place update", req.Type))
}

func (p *Provider) Delete(ctx context.Context, req *remote.DeleteRequest) error {
	if err := p.ensureClient(); err != nil {
		return err
	}

	switch req.Type {
	case "docker:Image":
		_, err := p.client.ImageRemove(ctx, req.ID, image.RemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			return classify(fmt.Errorf("failed to remove image: %w", err))
		}
		return nil
	case "docker:Network":
		if err := p.client.NetworkRemove(ctx, req.ID); err != nil && !client.IsErrNotFound(err) {
			return classify(fmt.Errorf("failed to remove network: %w", err))
		}
		return nil
	case "docker:Volume":
		if err := p.client.VolumeRemove(ctx, req.ID, true); err != nil && !client.IsErrNotFound(err) {
			return classify(fmt.Errorf("failed to remove volume: %w", err))
		}
		return nil
	case "docker:Container":
		timeout := 10 // seconds
		_ = p.client.ContainerStop(ctx, req.ID, container.StopOptions{Timeout: &timeout})
		if err := p.client.ContainerRemove(ctx, req.ID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			return classify(fmt.Errorf("failed to remove container: %w", err))
		}
		return nil
	}
	return remote.Permanent(fmt.Errorf("unknown resource type: %s", req.Type))
}

// Ready reports containers as ready once running, or once healthy when a
// healthcheck is configured. Other types are ready as soon as created.
func (p *Provider) Ready(ctx context.Context, typeTag, id string) (bool, error) {
	if typeTag != "docker:Container" {
		return true, nil
	}
	if err := p.ensureClient(); err != nil {
		return false, err
	}

	inspect, err := p.client.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, remote.Permanent(fmt.Errorf("container %s disappeared: %w", id, err))
		}
		return false, classify(err)
	}
	if inspect.State == nil || !inspect.State.Running {
		return false, nil
	}
	if inspect.State.Health != nil {
		return inspect.State.Health.Status == "healthy", nil
	}
	return true, nil
}

func (p *Provider) pullImage(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decode[ImageConfig](props)
	if err != nil {
		return nil, err
	}

	reader, err := p.client.ImagePull(ctx, desired.Name, image.PullOptions{})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to pull image %s: %w", desired.Name, err))
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, desired.Name)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to inspect image: %w", err))
	}

	return &remote.Result{
		ID: inspect.ID,
		Attributes: map[string]any{
			"id":   inspect.ID,
			"name": desired.Name,
		},
	}, nil
}

func (p *Provider) createNetwork(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decode[NetworkConfig](props)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.NetworkCreate(ctx, desired.Name, network.CreateOptions{
		Driver:   desired.Driver,
		Internal: desired.Internal,
		Labels:   desired.Labels,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create network: %w", err))
	}

	return &remote.Result{
		ID: resp.ID,
		Attributes: map[string]any{
			"id":   resp.ID,
			"name": desired.Name,
		},
	}, nil
}

func (p *Provider) createVolume(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decode[VolumeConfig](props)
	if err != nil {
		return nil, err
	}

	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   desired.Name,
		Driver: desired.Driver,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create volume: %w", err))
	}

	return &remote.Result{
		ID: vol.Name,
		Attributes: map[string]any{
			"id":         vol.Name,
			"name":       vol.Name,
			"mountpoint": vol.Mountpoint,
		},
	}, nil
}

func (p *Provider) createContainer(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decode[ContainerConfig](props)
	if err != nil {
		return nil, err
	}

	reader, err := p.client.ImagePull(ctx, desired.Image, image.PullOptions{})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to pull image %s: %w", desired.Image, err))
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range desired.Ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[port] = []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: hostPort,
			},
		}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        resolveBinds(desired.Volumes),
	}
	if len(desired.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(desired.Networks[0])
	}
	if desired.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(desired.Restart),
		}
	}

	config := &container.Config{
		Image:      desired.Image,
		Cmd:        desired.Command,
		Env:        envList(desired.Env),
		Labels:     desired.Labels,
		WorkingDir: desired.WorkingDir,
		User:       desired.User,
	}
	if desired.Healthcheck != nil {
		config.Healthcheck = healthConfig(desired.Healthcheck)
	}

	resp, err := p.client.ContainerCreate(ctx, config, hostConfig, &network.NetworkingConfig{}, nil, desired.Name)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create container: %w", err))
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, classify(fmt.Errorf("failed to start container: %w", err))
	}

	return &remote.Result{
		ID: resp.ID,
		Attributes: map[string]any{
			"id":    resp.ID,
			"name":  desired.Name,
			"image": desired.Image,
		},
	}, nil
}

// updateContainer restarts the container with fresh settings where the engine
// allows it. Environment and image changes force replacement via the schema,
// so the updatable surface is the restart policy.
func (p *Provider) updateContainer(ctx context.Context, id string, props map[string]any) (*remote.Result, error) {
	desired, err := decode[ContainerConfig](props)
	if err != nil {
		return nil, err
	}

	if desired.Restart != "" {
		_, err := p.client.ContainerUpdate(ctx, id, container.UpdateConfig{
			RestartPolicy: container.RestartPolicy{
				Name: container.RestartPolicyMode(desired.Restart),
			},
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to update container: %w", err))
		}
	}

	return &remote.Result{
		ID: id,
		Attributes: map[string]any{
			"id":    id,
			"name":  desired.Name,
			"image": desired.Image,
		},
	}, nil
}

func healthConfig(hc *HealthcheckConfig) *container.HealthConfig {
	test := hc.Test
	if len(test) == 0 {
		test = []string{"NONE"}
	}
	interval, _ := time.ParseDuration(hc.Interval)
	timeout, _ := time.ParseDuration(hc.Timeout)
	startPeriod, _ := time.ParseDuration(hc.StartPeriod)
	return &container.HealthConfig{
		Test:        test,
		Interval:    interval,
		Timeout:     timeout,
		StartPeriod: startPeriod,
		Retries:     hc.Retries,
	}
}

// resolveBinds makes relative host paths absolute so the daemon does not treat
// them as named volumes.
func resolveBinds(volumes []string) []string {
	var binds []string
	for _, v := range volumes {
		parts := strings.SplitN(v, ":", 2)
		if strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../") {
			if abs, err := filepath.Abs(parts[0]); err == nil {
				parts[0] = abs
				binds = append(binds, strings.Join(parts, ":"))
				continue
			}
		}
		binds = append(binds, v)
	}
	return binds
}

func envList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrConnectionFailed(err) {
		return remote.Transient(err)
	}
	return remote.Permanent(err)
}

func decode[T any](props map[string]any) (T, error) {
	var out T
	b, err := json.Marshal(props)
	if err != nil {
		return out, remote.Permanent(fmt.Errorf("failed to encode properties: %w", err))
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, remote.Permanent(fmt.Errorf("failed to decode properties: %w", err))
	}
	return out, nil
}
