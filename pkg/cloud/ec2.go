// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"encoding/base64"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/icrar/chiles02/pkg/capacity"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	spotRequestResource = "spot-instances-request"
	// EC2 throttles mutating calls per account; spot requests are spread out.
	defaultSpotRequestsPerSecond = 2
)

// SpotProvisioner requests EC2 spot instances.
type SpotProvisioner struct {
	client  ec2iface.EC2API
	limiter *rate.Limiter
	// KeyName and SecurityGroups are optional launch settings.
	KeyName        string
	SecurityGroups []string
}

// NewEC2Client creates an EC2 client from the session.
func NewEC2Client(sess *session.Session) ec2iface.EC2API {
	return ec2.New(sess)
}

// NewSpotProvisioner creates a provisioner over client.
func NewSpotProvisioner(client ec2iface.EC2API) *SpotProvisioner {
	return &SpotProvisioner{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(defaultSpotRequestsPerSecond), 1),
	}
}

// RequestCapacity implements capacity.Provisioner.
func (p *SpotProvisioner) RequestCapacity(ctx context.Context, req capacity.CapacityRequest) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return cerrors.WrapError(cerrors.ErrCapacityRequestFailed, err,
			req.Flavor.Count, req.Flavor.InstanceType)
	}

	spec := &ec2.RequestSpotLaunchSpecification{
		ImageId:      aws.String(req.ImageID),
		InstanceType: aws.String(req.Flavor.InstanceType),
	}
	if req.UserData != "" {
		spec.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(req.UserData)))
	}
	if p.KeyName != "" {
		spec.KeyName = aws.String(p.KeyName)
	}
	if len(p.SecurityGroups) > 0 {
		spec.SecurityGroups = aws.StringSlice(p.SecurityGroups)
	}

	input := &ec2.RequestSpotInstancesInput{
		InstanceCount:       aws.Int64(int64(req.Flavor.Count)),
		SpotPrice:           aws.String(strconv.FormatFloat(req.Flavor.SpotPrice, 'f', -1, 64)),
		LaunchSpecification: spec,
	}
	tags := spotTags(req.Tags)
	if len(tags) > 0 {
		input.TagSpecifications = []*ec2.TagSpecification{{
			ResourceType: aws.String(spotRequestResource),
			Tags:         tags,
		}}
	}

	out, err := p.client.RequestSpotInstancesWithContext(ctx, input)
	if err != nil {
		return cerrors.WrapError(cerrors.ErrCapacityRequestFailed, err,
			req.Flavor.Count, req.Flavor.InstanceType)
	}
	ids := make([]string, 0, len(out.SpotInstanceRequests))
	for _, r := range out.SpotInstanceRequests {
		ids = append(ids, aws.StringValue(r.SpotInstanceRequestId))
	}
	log.Info("spot instances requested",
		zap.String("instanceType", req.Flavor.InstanceType),
		zap.Int("count", req.Flavor.Count),
		zap.Float64("spotPrice", req.Flavor.SpotPrice),
		zap.String("correlationID", req.CorrelationID),
		zap.Strings("requestIDs", ids))

	if len(tags) > 0 && len(ids) > 0 {
		if err := p.tagInstances(ctx, ids, tags); err != nil {
			if ctx.Err() != nil {
				return cerrors.WrapError(cerrors.ErrCapacityRequestFailed, err,
					req.Flavor.Count, req.Flavor.InstanceType)
			}
			log.Warn("instances left untagged",
				zap.String("correlationID", req.CorrelationID),
				zap.Strings("requestIDs", ids),
				zap.Error(err))
		}
	}
	return nil
}

// tagInstances copies the request tags onto the instances once the spot
// requests are fulfilled. Tags on the request itself do not propagate.
func (p *SpotProvisioner) tagInstances(ctx context.Context, requestIDs []string, tags []*ec2.Tag) error {
	describe := &ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: aws.StringSlice(requestIDs),
	}
	if err := p.client.WaitUntilSpotInstanceRequestFulfilledWithContext(ctx, describe); err != nil {
		return errors.Trace(err)
	}
	out, err := p.client.DescribeSpotInstanceRequestsWithContext(ctx, describe)
	if err != nil {
		return errors.Trace(err)
	}
	instances := make([]*string, 0, len(out.SpotInstanceRequests))
	for _, r := range out.SpotInstanceRequests {
		if aws.StringValue(r.InstanceId) != "" {
			instances = append(instances, r.InstanceId)
		}
	}
	if len(instances) == 0 {
		return nil
	}
	if _, err := p.client.CreateTagsWithContext(ctx, &ec2.CreateTagsInput{
		Resources: instances,
		Tags:      tags,
	}); err != nil {
		return errors.Trace(err)
	}
	log.Info("instances tagged", zap.Strings("instanceIDs", aws.StringValueSlice(instances)))
	return nil
}

// spotTags converts tags to EC2 tags sorted by key.
func spotTags(tags map[string]string) []*ec2.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	res := make([]*ec2.Tag, 0, len(keys))
	for _, k := range keys {
		res = append(res, &ec2.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return res
}
