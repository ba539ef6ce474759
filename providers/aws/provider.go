// Package aws implements the remote store over the AWS APIs for the resource
// types a container-hosted service needs: log groups, task definitions,
// services, load balancers and DNS records.
package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/smithy-go"

	"github.com/herculesaleixo/stackform/internal/remote"
)

type Provider struct {
	mu            sync.Mutex
	logsClient    *cloudwatchlogs.Client
	ecsClient     *ecs.Client
	elbv2Client   *elasticloadbalancingv2.Client
	route53Client *route53.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClients(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ecsClient != nil {
		return nil
	}

	region := os.Getenv("AWS_REGION")
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return remote.Permanent(fmt.Errorf("unable to load SDK config: %w", err))
	}

	p.logsClient = cloudwatchlogs.NewFromConfig(cfg)
	p.ecsClient = ecs.NewFromConfig(cfg)
	p.elbv2Client = elasticloadbalancingv2.NewFromConfig(cfg)
	p.route53Client = route53.NewFromConfig(cfg)
	return nil
}

func (p *Provider) Create(ctx context.Context, req *remote.CreateRequest) (*remote.Result, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case "aws:logs.LogGroup":
		return p.createLogGroup(ctx, req.Properties)
	case "aws:ecs.TaskDefinition":
		return p.registerTaskDefinition(ctx, req.Properties)
	case "aws:ecs.Service":
		return p.createService(ctx, req.Properties)
	case "aws:elbv2.LoadBalancer":
		return p.createLoadBalancer(ctx, req.Properties)
	case "aws:elbv2.TargetGroup":
		return p.createTargetGroup(ctx, req.Properties)
	case "aws:elbv2.Listener":
		return p.createListener(ctx, req.Properties)
	case "aws:route53.RecordSet":
		return p.upsertRecordSet(ctx, req.Properties)
	}
	return nil, remote.Permanent(fmt.Errorf("unknown resource type: %s", req.Type))
}

func (p *Provider) Update(ctx context.Context, req *remote.UpdateRequest) (*remote.Result, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}

	switch req.Type {
	case "aws:logs.LogGroup":
		return p.updateLogGroup(ctx, req.ID, req.Properties)
	case "aws:ecs.TaskDefinition":
		// task definitions are immutable; an in-place update registers the
		// next revision of the same family
		return p.registerTaskDefinition(ctx, req.Properties)
	case "aws:ecs.Service":
		return p.updateService(ctx, req.Properties)
	case "aws:elbv2.LoadBalancer":
		return p.updateLoadBalancer(ctx, req.ID, req.Properties)
	case "aws:elbv2.TargetGroup":
		return p.updateTargetGroup(ctx, req.ID, req.Properties)
	case "aws:elbv2.Listener":
		return p.updateListener(ctx, req.ID, req.Properties)
	case "aws:route53.RecordSet":
		return p.upsertRecordSet(ctx, req.Properties)
	}
	return nil, remote.Permanent(fmt.Errorf("unknown resource type: %s", req.Type))
}

func (p *Provider) Delete(ctx context.Context, req *remote.DeleteRequest) error {
	if err := p.ensureClients(ctx); err != nil {
		return err
	}

	switch req.Type {
	case "aws:logs.LogGroup":
		return p.deleteLogGroup(ctx, req.ID)
	case "aws:ecs.TaskDefinition":
		return p.deregisterTaskDefinition(ctx, req.ID)
	case "aws:ecs.Service":
		return p.deleteService(ctx, req.ID, req.Prior)
	case "aws:elbv2.LoadBalancer":
		return p.deleteLoadBalancer(ctx, req.ID)
	case "aws:elbv2.TargetGroup":
		return p.deleteTargetGroup(ctx, req.ID)
	case "aws:elbv2.Listener":
		return p.deleteListener(ctx, req.ID)
	case "aws:route53.RecordSet":
		return p.deleteRecordSet(ctx, req.Prior)
	}
	return remote.Permanent(fmt.Errorf("unknown resource type: %s", req.Type))
}

func (p *Provider) Ready(ctx context.Context, typeTag, id string) (bool, error) {
	if err := p.ensureClients(ctx); err != nil {
		return false, err
	}

	switch typeTag {
	case "aws:ecs.Service":
		return p.serviceStable(ctx, id)
	case "aws:elbv2.LoadBalancer":
		return p.loadBalancerActive(ctx, id)
	case "aws:route53.RecordSet":
		return p.recordSetInSync(ctx, id)
	default:
		// log groups, task definitions, target groups and listeners are
		// available as soon as the API call returns
		return true, nil
	}
}

// classify maps SDK failures onto the retryable/permanent split. Throttling
// and server faults are worth retrying; client faults are not. Errors that
// never reached the API (network) are treated as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "TooManyRequestsException",
			"RequestLimitExceeded", "PriorRequestNotComplete",
			"ServiceUnavailable", "InternalFailure", "InternalError":
			return remote.Transient(err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return remote.Transient(err)
		}
		return remote.Permanent(err)
	}
	return remote.Transient(err)
}

// decodeProps maps a property bag onto a typed config struct via JSON.
func decodeProps[T any](props map[string]any) (T, error) {
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
