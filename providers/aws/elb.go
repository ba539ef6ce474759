package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/herculesaleixo/stackform/internal/remote"
)

type LoadBalancerConfig struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Subnets        []string `json:"subnets"`
	SecurityGroups []string `json:"securityGroups"`
	Scheme         string   `json:"scheme"`
}

type TargetGroupConfig struct {
	Name                string `json:"name"`
	Port                int    `json:"port"`
	Protocol            string `json:"protocol"`
	VpcID               string `json:"vpcId"`
	TargetType          string `json:"targetType"`
	HealthCheckPath     string `json:"healthCheckPath"`
	DeregistrationDelay int    `json:"deregistrationDelay"`
}

type ListenerConfig struct {
	LoadBalancerArn string           `json:"loadBalancerArn"`
	Port            int              `json:"port"`
	Protocol        string           `json:"protocol"`
	CertificateArn  string           `json:"certificateArn"`
	DefaultActions  []ListenerAction `json:"defaultActions"`
}

type ListenerAction struct {
	Type           string `json:"type"`
	TargetGroupArn string `json:"targetGroupArn"`
}

func (p *Provider) createLoadBalancer(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[LoadBalancerConfig](props)
	if err != nil {
		return nil, err
	}

	resp, err := p.elbv2Client.CreateLoadBalancer(ctx, &elasticloadbalancingv2.CreateLoadBalancerInput{
		Name:           &desired.Name,
		Subnets:        desired.Subnets,
		SecurityGroups: desired.SecurityGroups,
		Scheme:         types.LoadBalancerSchemeEnum(desired.Scheme),
		Type:           types.LoadBalancerTypeEnum(desired.Type),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create load balancer: %w", err))
	}

	lb := resp.LoadBalancers[0]
	return &remote.Result{
		ID: *lb.LoadBalancerArn,
		Attributes: map[string]any{
			"arn":          *lb.LoadBalancerArn,
			"name":         *lb.LoadBalancerName,
			"dnsName":      *lb.DNSName,
			"hostedZoneId": *lb.CanonicalHostedZoneId,
		},
	}, nil
}

func (p *Provider) updateLoadBalancer(ctx context.Context, id string, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[LoadBalancerConfig](props)
	if err != nil {
		return nil, err
	}

	if len(desired.SecurityGroups) > 0 {
		_, err := p.elbv2Client.SetSecurityGroups(ctx, &elasticloadbalancingv2.SetSecurityGroupsInput{
			LoadBalancerArn: &id,
			SecurityGroups:  desired.SecurityGroups,
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to set security groups: %w", err))
		}
	}
	if len(desired.Subnets) > 0 {
		_, err := p.elbv2Client.SetSubnets(ctx, &elasticloadbalancingv2.SetSubnetsInput{
			LoadBalancerArn: &id,
			Subnets:         desired.Subnets,
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to set subnets: %w", err))
		}
	}

	return p.describeLoadBalancer(ctx, id)
}

func (p *Provider) deleteLoadBalancer(ctx context.Context, id string) error {
	_, err := p.elbv2Client.DeleteLoadBalancer(ctx, &elasticloadbalancingv2.DeleteLoadBalancerInput{
		LoadBalancerArn: &id,
	})
	if err != nil {
		return classify(fmt.Errorf("failed to delete load balancer: %w", err))
	}
	return nil
}

func (p *Provider) loadBalancerActive(ctx context.Context, id string) (bool, error) {
	resp, err := p.elbv2Client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{id},
	})
	if err != nil {
		return false, classify(fmt.Errorf("failed to describe load balancer: %w", err))
	}
	if len(resp.LoadBalancers) == 0 || resp.LoadBalancers[0].State == nil {
		return false, nil
	}
	return resp.LoadBalancers[0].State.Code == types.LoadBalancerStateEnumActive, nil
}

func (p *Provider) describeLoadBalancer(ctx context.Context, id string) (*remote.Result, error) {
	resp, err := p.elbv2Client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{id},
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to describe load balancer: %w", err))
	}
	if len(resp.LoadBalancers) == 0 {
		return nil, remote.Permanent(fmt.Errorf("load balancer %s not found", id))
	}

	lb := resp.LoadBalancers[0]
	return &remote.Result{
		ID: *lb.LoadBalancerArn,
		Attributes: map[string]any{
			"arn":          *lb.LoadBalancerArn,
			"name":         *lb.LoadBalancerName,
			"dnsName":      *lb.DNSName,
			"hostedZoneId": *lb.CanonicalHostedZoneId,
		},
	}, nil
}

func (p *Provider) createTargetGroup(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[TargetGroupConfig](props)
	if err != nil {
		return nil, err
	}

	input := &elasticloadbalancingv2.CreateTargetGroupInput{
		Name:       &desired.Name,
		Port:       ptr(int32(desired.Port)),
		Protocol:   types.ProtocolEnum(desired.Protocol),
		VpcId:      &desired.VpcID,
		TargetType: types.TargetTypeEnum(desired.TargetType),
	}
	if desired.HealthCheckPath != "" {
		input.HealthCheckPath = &desired.HealthCheckPath
	}

	resp, err := p.elbv2Client.CreateTargetGroup(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create target group: %w", err))
	}

	tg := resp.TargetGroups[0]
	if desired.DeregistrationDelay > 0 {
		if err := p.setDeregistrationDelay(ctx, *tg.TargetGroupArn, desired.DeregistrationDelay); err != nil {
			return nil, err
		}
	}

	return &remote.Result{
		ID: *tg.TargetGroupArn,
		Attributes: map[string]any{
			"arn":  *tg.TargetGroupArn,
			"name": *tg.TargetGroupName,
		},
	}, nil
}

func (p *Provider) updateTargetGroup(ctx context.Context, id string, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[TargetGroupConfig](props)
	if err != nil {
		return nil, err
	}

	input := &elasticloadbalancingv2.ModifyTargetGroupInput{
		TargetGroupArn: &id,
	}
	if desired.HealthCheckPath != "" {
		input.HealthCheckPath = &desired.HealthCheckPath
	}
	resp, err := p.elbv2Client.ModifyTargetGroup(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to modify target group: %w", err))
	}
	if desired.DeregistrationDelay > 0 {
		if err := p.setDeregistrationDelay(ctx, id, desired.DeregistrationDelay); err != nil {
			return nil, err
		}
	}

	tg := resp.TargetGroups[0]
	return &remote.Result{
		ID: *tg.TargetGroupArn,
		Attributes: map[string]any{
			"arn":  *tg.TargetGroupArn,
			"name": *tg.TargetGroupName,
		},
	}, nil
}

func (p *Provider) setDeregistrationDelay(ctx context.Context, arn string, seconds int) error {
	_, err := p.elbv2Client.ModifyTargetGroupAttributes(ctx, &elasticloadbalancingv2.ModifyTargetGroupAttributesInput{
		TargetGroupArn: &arn,
		Attributes: []types.TargetGroupAttribute{
			{
				Key:   ptr("deregistration_delay.timeout_seconds"),
				Value: ptr(fmt.Sprintf("%d", seconds)),
			},
		},
	})
	if err != nil {
		return classify(fmt.Errorf("failed to set deregistration delay: %w", err))
	}
	return nil
}

func (p *Provider) deleteTargetGroup(ctx context.Context, id string) error {
	_, err := p.elbv2Client.DeleteTargetGroup(ctx, &elasticloadbalancingv2.DeleteTargetGroupInput{
		TargetGroupArn: &id,
	})
	if err != nil {
		return classify(fmt.Errorf("failed to delete target group: %w", err))
	}
	return nil
}

func (p *Provider) createListener(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[ListenerConfig](props)
	if err != nil {
		return nil, err
	}

	input := &elasticloadbalancingv2.CreateListenerInput{
		LoadBalancerArn: &desired.LoadBalancerArn,
		Port:            ptr(int32(desired.Port)),
		Protocol:        types.ProtocolEnum(desired.Protocol),
		DefaultActions:  listenerActions(desired.DefaultActions),
	}
	if desired.CertificateArn != "" {
		input.Certificates = []types.Certificate{{CertificateArn: &desired.CertificateArn}}
	}

	resp, err := p.elbv2Client.CreateListener(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create listener: %w", err))
	}

	return &remote.Result{
		ID: *resp.Listeners[0].ListenerArn,
		Attributes: map[string]any{
			"arn": *resp.Listeners[0].ListenerArn,
		},
	}, nil
}

func (p *Provider) updateListener(ctx context.Context, id string, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[ListenerConfig](props)
	if err != nil {
		return nil, err
	}

	input := &elasticloadbalancingv2.ModifyListenerInput{
		ListenerArn:    &id,
		Port:           ptr(int32(desired.Port)),
		Protocol:       types.ProtocolEnum(desired.Protocol),
		DefaultActions: listenerActions(desired.DefaultActions),
	}
	if desired.CertificateArn != "" {
		input.Certificates = []types.Certificate{{CertificateArn: &desired.CertificateArn}}
	}

	resp, err := p.elbv2Client.ModifyListener(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to modify listener: %w", err))
	}

	return &remote.Result{
		ID: *resp.Listeners[0].ListenerArn,
		Attributes: map[string]any{
			"arn": *resp.Listeners[0].ListenerArn,
		},
	}, nil
}

func (p *Provider) deleteListener(ctx context.Context, id string) error {
	_, err := p.elbv2Client.DeleteListener(ctx, &elasticloadbalancingv2.DeleteListenerInput{
		ListenerArn: &id,
	})
	if err != nil {
		return classify(fmt.Errorf("failed to delete listener: %w", err))
	}
	return nil
}

func listenerActions(actions []ListenerAction) []types.Action {
	var out []types.Action
	for _, a := range actions {
		out = append(out, types.Action{
			Type:           types.ActionTypeEnum(a.Type),
			TargetGroupArn: &a.TargetGroupArn,
		})
	}
	return out
}
