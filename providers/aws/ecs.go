package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/herculesaleixo/stackform/internal/remote"
)

type TaskDefinitionConfig struct {
	Family               string                `json:"family"`
	NetworkMode          string                `json:"networkMode"`
	Cpu                  string                `json:"cpu"`
	Memory               string                `json:"memory"`
	ExecutionRoleArn     string                `json:"executionRoleArn"`
	TaskRoleArn          string                `json:"taskRoleArn"`
	ContainerDefinitions []ContainerDefinition `json:"containerDefinitions"`
}

type ContainerDefinition struct {
	Name         string        `json:"name"`
	Image        string        `json:"image"`
	Cpu          int           `json:"cpu"`
	Memory       int           `json:"memory"`
	Essential    bool          `json:"essential"`
	PortMappings []PortMapping `json:"portMappings"`
	LogGroup     string        `json:"logGroup"`
	MountPoints  []MountPoint  `json:"mountPoints"`
}

type PortMapping struct {
	ContainerPort int    `json:"containerPort"`
	HostPort      int    `json:"hostPort"`
	Protocol      string `json:"protocol"`
}

type MountPoint struct {
	SourceVolume  string `json:"sourceVolume"`
	ContainerPath string `json:"containerPath"`
	ReadOnly      bool   `json:"readOnly"`
}

type ServiceConfig struct {
	ServiceName          string                `json:"serviceName"`
	Cluster              string                `json:"cluster"`
	TaskDefinition       string                `json:"taskDefinition"`
	DesiredCount         int                   `json:"desiredCount"`
	LaunchType           string                `json:"launchType"`
	NetworkConfiguration *NetworkConfiguration `json:"networkConfiguration"`
	LoadBalancers        []ServiceLoadBalancer `json:"loadBalancers"`
}

type NetworkConfiguration struct {
	Subnets        []string `json:"subnets"`
	SecurityGroups []string `json:"securityGroups"`
	AssignPublicIp bool     `json:"assignPublicIp"`
}

type ServiceLoadBalancer struct {
	TargetGroupArn string `json:"targetGroupArn"`
	ContainerName  string `json:"containerName"`
	ContainerPort  int    `json:"containerPort"`
}

func (p *Provider) registerTaskDefinition(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[TaskDefinitionConfig](props)
	if err != nil {
		return nil, err
	}

	var containerDefs []types.ContainerDefinition
	for _, c := range desired.ContainerDefinitions {
		var mappings []types.PortMapping
		for _, m := range c.PortMappings {
			proto := m.Protocol
			if proto == "" {
				proto = "tcp"
			}
			mappings = append(mappings, types.PortMapping{
				ContainerPort: ptr(int32(m.ContainerPort)),
				HostPort:      ptr(int32(m.HostPort)),
				Protocol:      types.TransportProtocol(proto),
			})
		}
		var mounts []types.MountPoint
		for _, m := range c.MountPoints {
			mounts = append(mounts, types.MountPoint{
				SourceVolume:  &m.SourceVolume,
				ContainerPath: &m.ContainerPath,
				ReadOnly:      &m.ReadOnly,
			})
		}
		def := types.ContainerDefinition{
			Name:         &c.Name,
			Image:        &c.Image,
			Cpu:          int32(c.Cpu),
			Essential:    ptr(c.Essential),
			PortMappings: mappings,
			MountPoints:  mounts,
		}
		if c.Memory > 0 {
			def.Memory = ptr(int32(c.Memory))
		}
		if c.LogGroup != "" {
			def.LogConfiguration = &types.LogConfiguration{
				LogDriver: types.LogDriverAwslogs,
				Options: map[string]string{
					"awslogs-group":         c.LogGroup,
					"awslogs-stream-prefix": c.Name,
				},
			}
		}
		containerDefs = append(containerDefs, def)
	}

	input := &ecs.RegisterTaskDefinitionInput{
		Family:                  &desired.Family,
		ContainerDefinitions:    containerDefs,
		NetworkMode:             types.NetworkMode(desired.NetworkMode),
		RequiresCompatibilities: []types.Compatibility{types.CompatibilityFargate},
	}
	if desired.Cpu != "" {
		input.Cpu = &desired.Cpu
	}
	if desired.Memory != "" {
		input.Memory = &desired.Memory
	}
	if desired.ExecutionRoleArn != "" {
		input.ExecutionRoleArn = &desired.ExecutionRoleArn
	}
	if desired.TaskRoleArn != "" {
		input.TaskRoleArn = &desired.TaskRoleArn
	}

	resp, err := p.ecsClient.RegisterTaskDefinition(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to register task definition: %w", err))
	}

	return &remote.Result{
		ID: *resp.TaskDefinition.TaskDefinitionArn,
		Attributes: map[string]any{
			"arn":      *resp.TaskDefinition.TaskDefinitionArn,
			"family":   *resp.TaskDefinition.Family,
			"revision": int(resp.TaskDefinition.Revision),
		},
	}, nil
}

func (p *Provider) deregisterTaskDefinition(ctx context.Context, id string) error {
	_, err := p.ecsClient.DeregisterTaskDefinition(ctx, &ecs.DeregisterTaskDefinitionInput{
		TaskDefinition: &id,
	})
	if err != nil {
		return classify(fmt.Errorf("failed to deregister task definition: %w", err))
	}
	return nil
}

func (p *Provider) createService(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[ServiceConfig](props)
	if err != nil {
		return nil, err
	}

	input := &ecs.CreateServiceInput{
		ServiceName:    &desired.ServiceName,
		Cluster:        &desired.Cluster,
		TaskDefinition: &desired.TaskDefinition,
		DesiredCount:   ptr(int32(desired.DesiredCount)),
		LaunchType:     types.LaunchType(desired.LaunchType),
	}
	if desired.NetworkConfiguration != nil {
		input.NetworkConfiguration = vpcConfiguration(desired.NetworkConfiguration)
	}
	for _, lb := range desired.LoadBalancers {
		input.LoadBalancers = append(input.LoadBalancers, types.LoadBalancer{
			TargetGroupArn: &lb.TargetGroupArn,
			ContainerName:  &lb.ContainerName,
			ContainerPort:  ptr(int32(lb.ContainerPort)),
		})
	}

	resp, err := p.ecsClient.CreateService(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create service: %w", err))
	}

	return &remote.Result{
		ID: *resp.Service.ServiceArn,
		Attributes: map[string]any{
			"arn":     *resp.Service.ServiceArn,
			"name":    *resp.Service.ServiceName,
			"cluster": desired.Cluster,
		},
	}, nil
}

func (p *Provider) updateService(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[ServiceConfig](props)
	if err != nil {
		return nil, err
	}

	input := &ecs.UpdateServiceInput{
		Service:            &desired.ServiceName,
		Cluster:            &desired.Cluster,
		TaskDefinition:     &desired.TaskDefinition,
		DesiredCount:       ptr(int32(desired.DesiredCount)),
		ForceNewDeployment: true,
	}
	if desired.NetworkConfiguration != nil {
		input.NetworkConfiguration = vpcConfiguration(desired.NetworkConfiguration)
	}

	resp, err := p.ecsClient.UpdateService(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to update service: %w", err))
	}

	return &remote.Result{
		ID: *resp.Service.ServiceArn,
		Attributes: map[string]any{
			"arn":     *resp.Service.ServiceArn,
			"name":    *resp.Service.ServiceName,
			"cluster": desired.Cluster,
		},
	}, nil
}

func (p *Provider) deleteService(ctx context.Context, id string, prior map[string]any) error {
	cluster := serviceCluster(id, prior)

	// drain before deleting so the target group deregisters cleanly
	_, err := p.ecsClient.UpdateService(ctx, &ecs.UpdateServiceInput{
		Service:      &id,
		Cluster:      &cluster,
		DesiredCount: ptr(int32(0)),
	})
	if err != nil {
		return classify(fmt.Errorf("failed to drain service: %w", err))
	}

	_, err = p.ecsClient.DeleteService(ctx, &ecs.DeleteServiceInput{
		Service: &id,
		Cluster: &cluster,
		Force:   ptr(true),
	})
	if err != nil {
		return classify(fmt.Errorf("failed to delete service: %w", err))
	}
	return nil
}

func (p *Provider) serviceStable(ctx context.Context, id string) (bool, error) {
	cluster := serviceCluster(id, nil)
	resp, err := p.ecsClient.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Services: []string{id},
		Cluster:  &cluster,
	})
	if err != nil {
		return false, classify(fmt.Errorf("failed to describe service: %w", err))
	}
	if len(resp.Services) == 0 {
		return false, nil
	}

	svc := resp.Services[0]
	if len(svc.Deployments) != 1 {
		return false, nil
	}
	return svc.RunningCount == svc.DesiredCount, nil
}

// serviceCluster recovers the cluster a service belongs to, preferring the
// applied attributes and falling back to the long-form service ARN
// (…:service/<cluster>/<name>).
func serviceCluster(id string, prior map[string]any) string {
	if c, ok := prior["cluster"].(string); ok && c != "" {
		return c
	}
	if i := strings.Index(id, ":service/"); i >= 0 {
		rest := id[i+len(":service/"):]
		if cluster, _, ok := strings.Cut(rest, "/"); ok {
			return cluster
		}
	}
	return "default"
}

func vpcConfiguration(nc *NetworkConfiguration) *types.NetworkConfiguration {
	assignPublic := types.AssignPublicIpDisabled
	if nc.AssignPublicIp {
		assignPublic = types.AssignPublicIpEnabled
	}
	return &types.NetworkConfiguration{
		AwsvpcConfiguration: &types.AwsVpcConfiguration{
			Subnets:        nc.Subnets,
			SecurityGroups: nc.SecurityGroups,
			AssignPublicIp: assignPublic,
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}
