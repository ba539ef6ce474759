package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/herculesaleixo/stackform/internal/remote"
)

type RecordSetConfig struct {
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	TTL     int          `json:"ttl"`
	ZoneID  string       `json:"zoneId"`
	Records []string     `json:"records"`
	Alias   *AliasTarget `json:"alias"`
}

type AliasTarget struct {
	DNSName              string `json:"dnsName"`
	HostedZoneID         string `json:"hostedZoneId"`
	EvaluateTargetHealth bool   `json:"evaluateTargetHealth"`
}

// upsertRecordSet serves both create and update. Route 53 changes are batched
// UPSERTs, so the two operations are the same call. The remote ID is the
// change ID so readiness can poll propagation.
func (p *Provider) upsertRecordSet(ctx context.Context, props map[string]any) (*remote.Result, error) {
	desired, err := decodeProps[RecordSetConfig](props)
	if err != nil {
		return nil, err
	}

	resp, err := p.route53Client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &desired.ZoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action:            types.ChangeActionUpsert,
					ResourceRecordSet: resourceRecordSet(desired),
				},
			},
		},
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to upsert record set: %w", err))
	}

	return &remote.Result{
		ID: *resp.ChangeInfo.Id,
		Attributes: map[string]any{
			"name":   desired.Name,
			"type":   desired.Type,
			"zoneId": desired.ZoneID,
			"fqdn":   desired.Name,
		},
	}, nil
}

// deleteRecordSet rebuilds the record from the applied inputs since Route 53
// requires the full record set in a DELETE change.
func (p *Provider) deleteRecordSet(ctx context.Context, prior map[string]any) error {
	cfg, err := decodeProps[RecordSetConfig](prior)
	if err != nil {
		return err
	}
	if cfg.ZoneID == "" || cfg.Name == "" {
		return remote.Permanent(fmt.Errorf("record set prior state is missing zoneId or name"))
	}

	_, err = p.route53Client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &cfg.ZoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action:            types.ChangeActionDelete,
					ResourceRecordSet: resourceRecordSet(cfg),
				},
			},
		},
	})
	if err != nil {
		var gone *types.InvalidChangeBatch
		if !errors.As(err, &gone) {
			return classify(fmt.Errorf("failed to delete record set: %w", err))
		}
	}
	return nil
}

func (p *Provider) recordSetInSync(ctx context.Context, changeID string) (bool, error) {
	resp, err := p.route53Client.GetChange(ctx, &route53.GetChangeInput{
		Id: &changeID,
	})
	if err != nil {
		return false, classify(fmt.Errorf("failed to get change: %w", err))
	}
	return resp.ChangeInfo.Status == types.ChangeStatusInsync, nil
}

func resourceRecordSet(cfg RecordSetConfig) *types.ResourceRecordSet {
	var resourceRecords []types.ResourceRecord
	for _, r := range cfg.Records {
		resourceRecords = append(resourceRecords, types.ResourceRecord{
			Value: ptr(r),
		})
	}

	recordSet := &types.ResourceRecordSet{
		Name:            &cfg.Name,
		Type:            types.RRType(cfg.Type),
		ResourceRecords: resourceRecords,
	}
	if cfg.Alias != nil {
		recordSet.AliasTarget = &types.AliasTarget{
			DNSName:              &cfg.Alias.DNSName,
			HostedZoneId:         &cfg.Alias.HostedZoneID,
			EvaluateTargetHealth: cfg.Alias.EvaluateTargetHealth,
		}
		recordSet.ResourceRecords = nil
	} else {
		recordSet.TTL = ptr(int64(cfg.TTL))
	}
	return recordSet
}
