package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/herculesaleixo/stackform/internal/remote"
)

type LogGroupConfig struct {
	LogGroupName    string `json:"logGroupName"`
	RetentionInDays int    `json:"retentionInDays"`
}

func (p *Provider) createLogGroup(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[LogGroupConfig](props)
	if err != nil {
		return nil, err
	}

	_, err = p.logsClient.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: &desired.LogGroupName,
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if !errors.As(err, &exists) {
			return nil, classify(fmt.Errorf("failed to create log group: %w", err))
		}
	}

	if err := p.setRetention(ctx, desired); err != nil {
		return nil, err
	}

	return &remote.Result{
		ID: desired.LogGroupName,
		Attributes: map[string]any{
			"logGroupName": desired.LogGroupName,
		},
	}, nil
}

func (p *Provider) updateLogGroup(ctx context.Context, id string, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[LogGroupConfig](props)
	if err != nil {
		return nil, err
	}
	desired.LogGroupName = id

	if err := p.setRetention(ctx, desired); err != nil {
		return nil, err
	}

	return &remote.Result{
		ID: id,
		Attributes: map[string]any{
			"logGroupName": id,
		},
	}, nil
}

func (p *Provider) setRetention(ctx context.Context, cfg LogGroupConfig) error {
	if cfg.RetentionInDays <= 0 {
		_, err := p.logsClient.DeleteRetentionPolicy(ctx, &cloudwatchlogs.DeleteRetentionPolicyInput{
			LogGroupName: &cfg.LogGroupName,
		})
		if err != nil {
			return classify(fmt.Errorf("failed to clear retention policy: %w", err))
		}
		return nil
	}

	_, err := p.logsClient.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    &cfg.LogGroupName,
		RetentionInDays: ptr(int32(cfg.RetentionInDays)),
	})
	if err != nil {
		return classify(fmt.Errorf("failed to set retention policy: %w", err))
	}
	return nil
}

func (p *Provider) deleteLogGroup(ctx context.Context, id string) error {
	_, err := p.logsClient.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: &id,
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return classify(fmt.Errorf("failed to delete log group: %w", err))
	}
	return nil
}
